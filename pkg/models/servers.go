package models

import "time"

// MonitoredServer is one community server the service watches. ID is the
// platform's server identifier.
type MonitoredServer struct {
	ID            string `json:"id" db:"id"`
	Name          string `json:"name" db:"name"`
	CuratorRoleID string `json:"curator_role_id" db:"curator_role_id"`

	// HelpChannelIDs limits help-request detection to the listed channels;
	// empty means every channel on the server is watched.
	HelpChannelIDs []string `json:"help_channel_ids,omitempty" db:"help_channel_ids"`
	// TaskChannelIDs are the completed-tasks report channels.
	TaskChannelIDs []string `json:"task_channel_ids,omitempty" db:"task_channel_ids"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WatchesChannel reports whether help detection applies in the channel.
func (s *MonitoredServer) WatchesChannel(channelID string) bool {
	if len(s.HelpChannelIDs) == 0 {
		return true
	}
	for _, id := range s.HelpChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

// IsTaskChannel reports whether the channel collects completed-tasks reports.
func (s *MonitoredServer) IsTaskChannel(channelID string) bool {
	for _, id := range s.TaskChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}
