package core

import "github.com/volklabs/focus/internal/domain"

// RoomListener receives the room's domain events. Methods are invoked
// synchronously on the goroutine that processed the triggering event;
// implementations must not block.
type RoomListener interface {
	MemberJoined(m domain.Member)
	MemberLeft(m domain.Member)
	MemberPresenceChanged(m domain.Member)
	LocalRoleChanged(role domain.Role)
	AvModerationChanged(media domain.MediaType, enabled bool, allowList []string)
}

// NopListener implements RoomListener with no-ops so that consumers can
// embed it and override only the events they care about.
type NopListener struct{}

func (NopListener) MemberJoined(domain.Member)                         {}
func (NopListener) MemberLeft(domain.Member)                           {}
func (NopListener) MemberPresenceChanged(domain.Member)                {}
func (NopListener) LocalRoleChanged(domain.Role)                       {}
func (NopListener) AvModerationChanged(domain.MediaType, bool, []string) {}
