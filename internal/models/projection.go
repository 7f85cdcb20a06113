package models

// DisplayWaitingLimit is how many waiting turns the public display shows.
const DisplayWaitingLimit = 10

// DailyStats counts the turns created on Day. Active counts the ones still
// holding their code.
type DailyStats struct {
	Day      string         `json:"day"`
	Total    int            `json:"total"`
	Active   int            `json:"active"`
	ByStatus map[Status]int `json:"by_status"`
}

type Display struct {
	Called    []Turn     `json:"called"`
	InService []Turn     `json:"in_service"`
	Waiting   []Turn     `json:"waiting"`
	Stats     DailyStats `json:"stats"`
}

type Worklist struct {
	DoctorID string `json:"doctor_id"`
	Current  *Turn  `json:"current,omitempty"`
	Turns    []Turn `json:"turns"`
}
