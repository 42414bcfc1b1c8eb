package model

import "time"

// TravelerRating is the aggregate star rating of a traveler. It is maintained outside
// this service; matching only reads it.
type TravelerRating struct {
	OwnerUID  string    `gorm:"primaryKey;column:owner_uid;size:128"`
	Average   float64   `gorm:"column:average;not null"`
	Count     int       `gorm:"column:count;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TravelerRating) TableName() string {
	return "traveler_ratings"
}
