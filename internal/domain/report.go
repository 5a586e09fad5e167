package domain

import "time"

// TrendBucket aggregates one day of delivery activity.
type TrendBucket struct {
	Day       time.Time
	Created   int64
	Delivered int64
	Revenue   float64
}

// Overview is the reporting view for admins and businesses.
type Overview struct {
	Counts      map[Status]int64
	Trend       []TrendBucket
	Leaderboard []CourierAccount
}
