package models

import "time"

// EngagementAggregate holds the counters of a single property. Rows are created
// lazily on the first event and only ever incremented.
type EngagementAggregate struct {
	PropertyID             int64     `json:"property_id" gorm:"primaryKey;autoIncrement:false"`
	TotalViews             int64     `json:"total_views" gorm:"not null;default:0"`
	TotalEngagementSeconds int64     `json:"total_engagement_seconds" gorm:"not null;default:0"`
	TotalSaves             int64     `json:"total_saves" gorm:"not null;default:0"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Rating is one submitted rating. The same user may rate a property many times.
type Rating struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	PropertyID  int64     `json:"property_id" gorm:"index;not null"`
	UserID      string    `json:"user_id,omitempty"`
	Value       int       `json:"value" gorm:"not null"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Save marks a property as saved by a user; unique per pair
type Save struct {
	PropertyID int64     `json:"property_id" gorm:"primaryKey;autoIncrement:false"`
	UserID     string    `json:"user_id" gorm:"primaryKey"`
	SavedAt    time.Time `json:"saved_at"`
}

// EngagementMetrics is the read model of one property's engagement
type EngagementMetrics struct {
	PropertyID             int64    `json:"property_id"`
	TotalViews             int64    `json:"total_views"`
	TotalEngagementSeconds int64    `json:"total_engagement_seconds"`
	Ratings                []Rating `json:"ratings"`
	AverageRating          float64  `json:"average_rating"`
	Saves                  []string `json:"saves"`
}

// EngagementSummary aggregates metrics across a set of properties
type EngagementSummary struct {
	TotalProperties int     `json:"total_properties"`
	TotalViews      int64   `json:"total_views"`
	TotalSaves      int64   `json:"total_saves"`
	TotalRatings    int64   `json:"total_ratings"`
	AvgRating       float64 `json:"avg_rating"`
	AvgEngagement   int64   `json:"avg_engagement"`
}

// Engagement event kinds dispatched through the event queue
const (
	EventView       = "view"
	EventEngagement = "engagement"
)

// EngagementEvent is a fire-and-forget counter update
type EngagementEvent struct {
	Kind       string    `json:"kind"`
	PropertyID int64     `json:"property_id"`
	Seconds    int64     `json:"seconds,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}
