package storage

import (
	"context"
	"time"
)

// SearchRecord is one anonymous place-to-place search.
type SearchRecord struct {
	ID             int64     `json:"id"`
	StartQuery     string    `json:"start_query"`
	EndQuery       string    `json:"end_query"`
	StartCoords    string    `json:"start_coords"`
	EndCoords      string    `json:"end_coords"`
	TravelMode     string    `json:"travel_mode"`
	TransportTypes string    `json:"transport_types,omitempty"`
	MaxTransfers   string    `json:"max_transfers,omitempty"`
	Successful     bool      `json:"is_successful"`
	RoutesCount    int       `json:"routes_count"`
	CreatedAt      time.Time `json:"timestamp"`
}

// PopularRoute is a start/end query pair ranked by how often it was searched.
type PopularRoute struct {
	StartQuery     string    `json:"start_query"`
	EndQuery       string    `json:"end_query"`
	Count          int64     `json:"count"`
	AvgRoutesCount float64   `json:"avg_routes_count"`
	LastSearched   time.Time `json:"last_searched"`
}

// SearchHistoryRepository defines operations on the search_history table.
type SearchHistoryRepository interface {
	// RecordSearch inserts r and returns its generated ID.
	RecordSearch(ctx context.Context, r SearchRecord) (int64, error)

	// PopularRoutes ranks successful searches made after since by count,
	// most frequent first.
	PopularRoutes(ctx context.Context, since time.Time, limit int) ([]PopularRoute, error)
}
