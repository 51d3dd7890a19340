package wdhistory

import (
	"strings"
	"time"
)

// Page is the unit of work handed from the dump reader to the workers: one
// entity and all of its revisions in file order.
type Page struct {
	EntityID  string
	Title     string
	File      string
	Revisions []RawRevision
}

// RawRevision is a revision as found in the dump. Text is the undecoded
// document body.
type RawRevision struct {
	ID          int64
	ParentID    int64
	Timestamp   time.Time
	Comment     string
	Contributor Contributor
	Model       string
	Format      string
	Text        []byte
}

// Contributor identifies who made a revision. Anonymous edits carry only an
// IP address.
type Contributor struct {
	ID       int64
	Username string
	IP       string
}

// ActorClass buckets contributors for the per-entity statistics.
type ActorClass int

const (
	ActorUser ActorClass = iota
	ActorBot
	ActorAnonymous
)

func (a ActorClass) String() string {
	switch a {
	case ActorBot:
		return "bot"
	case ActorAnonymous:
		return "anonymous"
	default:
		return "user"
	}
}

// Class returns the ActorClass of c.
func (c Contributor) Class() ActorClass {
	if c.IP != "" && c.ID == 0 && c.Username == "" {
		return ActorAnonymous
	}
	if strings.HasSuffix(strings.ToLower(c.Username), "bot") {
		return ActorBot
	}
	return ActorUser
}

// Name returns the username, or the IP address for anonymous edits.
func (c Contributor) Name() string {
	if c.Username != "" {
		return c.Username
	}
	return c.IP
}
