package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"notify-mail-relay-go/internal/model"
)

func intPtr(v int) *int { return &v }

func TestDecide(t *testing.T) {
	f := New("notify-mail-relay", []string{"com.vendor.updater", " "}, 0)

	tests := []struct {
		name    string
		event   model.NotificationEvent
		admit   bool
		reason  string
		content string
	}{
		{
			name:    "plain message",
			event:   model.NotificationEvent{SourceIdentity: "chat.app", Title: "Alice", Text: "hi"},
			admit:   true,
			content: "hi",
		},
		{
			name:    "big text preferred",
			event:   model.NotificationEvent{SourceIdentity: "chat.app", Title: "Alice", Text: "hi", BigText: "hi there, long version"},
			admit:   true,
			content: "hi there, long version",
		},
		{
			name:  "title only",
			event: model.NotificationEvent{SourceIdentity: "chat.app", Title: "Missed call"},
			admit: true,
		},
		{
			name:   "own notifications",
			event:  model.NotificationEvent{SourceIdentity: "notify-mail-relay", Title: "Running"},
			reason: ReasonSelf,
		},
		{
			name:   "system ui",
			event:  model.NotificationEvent{SourceIdentity: "com.android.systemui", Title: "USB debugging"},
			reason: ReasonSystem,
		},
		{
			name:   "configured source",
			event:  model.NotificationEvent{SourceIdentity: "com.vendor.updater", Title: "Update"},
			reason: ReasonSystem,
		},
		{
			name:   "ongoing",
			event:  model.NotificationEvent{SourceIdentity: "music.app", Title: "Now playing", IsOngoing: true},
			reason: ReasonOngoing,
		},
		{
			name:   "low priority",
			event:  model.NotificationEvent{SourceIdentity: "shop.app", Title: "Sale", Priority: intPtr(-1)},
			reason: ReasonLowPriority,
		},
		{
			name:    "default priority",
			event:   model.NotificationEvent{SourceIdentity: "shop.app", Title: "Sale", Text: "50%", Priority: intPtr(0)},
			admit:   true,
			content: "50%",
		},
		{
			name:   "empty",
			event:  model.NotificationEvent{SourceIdentity: "chat.app"},
			reason: ReasonEmpty,
		},
		{
			name:   "zero value",
			event:  model.NotificationEvent{},
			reason: ReasonEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := f.Decide(tt.event)
			assert.Equal(t, tt.admit, d.Admit)
			assert.Equal(t, tt.reason, d.Reason)
			assert.Equal(t, tt.admit, f.Admit(tt.event))
			if tt.admit {
				assert.Equal(t, tt.event.Title, d.Title)
				assert.Equal(t, tt.content, d.Content)
			}
		})
	}
}

func TestEmptySelfIdentity(t *testing.T) {
	f := New("", nil, 0)
	assert.True(t, f.Admit(model.NotificationEvent{Title: "no source"}))
}
