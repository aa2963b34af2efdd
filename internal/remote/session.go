package remote

// Session identifies whose records are visible. The backend treats the
// partition key as an opaque filter.
type Session struct {
	UserID      string `json:"user_id"`
	HouseholdID string `json:"household_id,omitempty"`
}

// Shared reports whether the session belongs to a household.
func (s Session) Shared() bool {
	return s.HouseholdID != ""
}

// PartitionKey returns the key rows are stored and filtered under.
func (s Session) PartitionKey() string {
	if s.Shared() {
		return "household:" + s.HouseholdID
	}
	return "user:" + s.UserID
}

// LocalSession is the session used by single-user embedded installs.
var LocalSession = Session{UserID: "local"}
