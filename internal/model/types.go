package model

// Wire types shared by the API server and the store.

// ScheduleInfo describes a stored flight schedule.
type ScheduleInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Flights int    `json:"flights"`
	Days    int    `json:"days"`
}

// FlightRow is one flight of a stored schedule, position-ordered. Load is a
// per-run quantity and is always zero at rest.
type FlightRow struct {
	Number      int    `json:"flightNumber"`
	Departure   string `json:"departure"`
	Destination string `json:"destination"`
	Day         int    `json:"day"`
	Capacity    int    `json:"capacity"`
	Load        int    `json:"load"`
}

// OrderRow is one order of a stored batch. Row order is position order,
// which is the scheduling priority order.
type OrderRow struct {
	ID          string `json:"id"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// BatchInfo describes a stored order batch.
type BatchInfo struct {
	ID     string `json:"id"`
	Orders int    `json:"orders"`
}

// AssignRequest triggers one scheduling run.
type AssignRequest struct {
	TenantID   string `json:"tenantId,omitempty"`
	ScheduleID string `json:"scheduleId"`
	BatchID    string `json:"batchId"`
}

// SubscriptionRequest registers a webhook endpoint for run events.
type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
