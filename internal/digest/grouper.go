// internal/digest/grouper.go
package digest

import (
	"time"

	"promise-dispatch/internal/models"
)

// Role marks which side of a promise a bucket addresses.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleLeader Role = "leader"
)

// Item is one promise line in a digest email. Due dates carry no
// time-of-day, so the display slot is a fixed "EOD" placeholder.
type Item struct {
	PromiseText string    `json:"promiseText"`
	DueDate     time.Time `json:"dueDate"`
	DueDisplay  string    `json:"dueDisplay"`
}

// Bucket is the ephemeral per-recipient aggregation behind one email. It is
// rebuilt from live promise data on every cycle, never persisted.
type Bucket struct {
	RecipientName string `json:"recipientName"`
	Role          Role   `json:"role"`
	Items         []Item `json:"items"`
}

func newItem(p models.Promise) Item {
	return Item{
		PromiseText: p.PromiseText,
		DueDate:     p.DueDate,
		DueDisplay:  "EOD",
	}
}

// GroupForOwners buckets every promise by its owner's email. Pure function:
// the same input always yields structurally identical buckets.
func GroupForOwners(promises []models.Promise) map[string]*Bucket {
	buckets := make(map[string]*Bucket)
	for _, p := range promises {
		if p.OwnerEmail == "" {
			continue
		}
		b, ok := buckets[p.OwnerEmail]
		if !ok {
			b = &Bucket{RecipientName: p.OwnerName, Role: RoleOwner}
			buckets[p.OwnerEmail] = b
		}
		b.Items = append(b.Items, newItem(p))
	}
	return buckets
}

// GroupForLeaders buckets promises by the leader's email, resolved through
// the batch-loaded profile map. Two exclusions apply per promise:
//   - self-promises (resolved leader email equals owner email) are
//     suppressed so nobody is notified about their own commitment twice;
//   - promises whose leader has no profile are dropped from the leader view
//     only, they still appear in the owner grouping.
func GroupForLeaders(promises []models.Promise, profiles map[string]models.Profile) map[string]*Bucket {
	buckets := make(map[string]*Bucket)
	for _, p := range promises {
		profile, ok := profiles[p.LeaderID]
		if !ok || profile.Email == "" {
			continue
		}
		if profile.Email == p.OwnerEmail {
			continue
		}
		b, ok := buckets[profile.Email]
		if !ok {
			name := profile.FullName
			if name == "" {
				name = p.LeaderName
			}
			b = &Bucket{RecipientName: name, Role: RoleLeader}
			buckets[profile.Email] = b
		}
		b.Items = append(b.Items, newItem(p))
	}
	return buckets
}
