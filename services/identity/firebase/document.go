package firebase

import (
	"path"
	"time"

	"github.com/aurraa/classroom/core/identity"
)

type value struct {
	StringValue    *string `json:"stringValue,omitempty"`
	TimestampValue *string `json:"timestampValue,omitempty"`
}

// document is a Firestore document as exchanged over REST.
type document struct {
	Name   string           `json:"name,omitempty"`
	Fields map[string]value `json:"fields"`
}

func newDocument(rec identity.Record) document {
	doc := document{Fields: make(map[string]value)}
	str := func(key, s string) {
		if s != "" {
			doc.Fields[key] = value{StringValue: &s}
		}
	}
	ts := func(key string, t time.Time) {
		if !t.IsZero() {
			s := t.UTC().Format(time.RFC3339Nano)
			doc.Fields[key] = value{TimestampValue: &s}
		}
	}

	str("email", rec.Email)
	str("username", rec.Username)
	str("name", rec.Name)
	str("institution", rec.Institution)
	str("teacherName", rec.TeacherName)
	str("role", rec.Role)
	ts("createdAt", rec.CreatedAt)
	ts("lastLoginAt", rec.LastLoginAt)
	return doc
}

func (d document) str(key string) string {
	if v, ok := d.Fields[key]; ok && v.StringValue != nil {
		return *v.StringValue
	}
	return ""
}

func (d document) time(key string) time.Time {
	v, ok := d.Fields[key]
	if !ok || v.TimestampValue == nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, *v.TimestampValue)
	if err != nil {
		return time.Time{}
	}
	return t
}

// record reads a user record; the document id is the last segment of its name.
func (d document) record() identity.Record {
	return identity.Record{
		ID:          path.Base(d.Name),
		Email:       d.str("email"),
		Username:    d.str("username"),
		Name:        d.str("name"),
		Institution: d.str("institution"),
		TeacherName: d.str("teacherName"),
		Role:        d.str("role"),
		CreatedAt:   d.time("createdAt"),
		LastLoginAt: d.time("lastLoginAt"),
	}
}
