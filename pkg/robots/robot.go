// Package robots is a client for a backend robot collection exposed over
// REST-shaped HTTP endpoints: GET/POST /robots and GET/PUT/DELETE /robots/{id}.
//
// The client is stateless. Every call is an independent request, results are
// never cached, and every failure is reported as one of the typed errors in
// this package (ValidationError, NetworkUnavailableError, RequestFailedError,
// DecodeError) or matches ErrNotFound.
package robots

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ID identifies a robot. Backends may send it as a JSON string or a JSON
// integer; both decode into the same string form.
type ID string

// String returns the identifier as a string.
func (id ID) String() string { return string(id) }

// UnmarshalJSON accepts a JSON string, a JSON number, or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("robot id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Robot is a transient copy of a backend-owned robot record.
type Robot struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ImageURL    string  `json:"imageUrl"`
}

// UnmarshalJSON reads the identifier from "id" or, failing that, from the
// Mongo-style "_id" field. A null is not a robot.
func (r *Robot) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("robot is null")
	}
	var wire struct {
		ID          ID      `json:"id"`
		MongoID     ID      `json:"_id"`
		Name        string  `json:"name"`
		Description string  `json:"description"`
		Price       float64 `json:"price"`
		ImageURL    string  `json:"imageUrl"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	id := wire.ID
	if id == "" {
		id = wire.MongoID
	}
	*r = Robot{
		ID:          id,
		Name:        wire.Name,
		Description: wire.Description,
		Price:       wire.Price,
		ImageURL:    wire.ImageURL,
	}
	return nil
}

// Draft is a robot payload submitted for creation. The backend assigns the ID.
type Draft struct {
	Name        string  `json:"name" validate:"notblank"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0,finite"`
	ImageURL    string  `json:"imageUrl" validate:"required,url"`
}

// Patch is a partial update. Nil fields are left untouched and omitted from
// the request body.
type Patch struct {
	// Name renames the robot. The ID stays the canonical key, but anything
	// that looks robots up by name (see Client.FindRobotByName) will no
	// longer find the old name.
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	ImageURL    *string  `json:"imageUrl,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.ImageURL == nil
}

// Apply returns r with every present patch field copied over.
func (p Patch) Apply(r Robot) Robot {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Price != nil {
		r.Price = *p.Price
	}
	if p.ImageURL != nil {
		r.ImageURL = *p.ImageURL
	}
	return r
}

// FromDraft builds a robot with the given ID from a draft.
func FromDraft(id ID, d Draft) Robot {
	return Robot{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		ImageURL:    d.ImageURL,
	}
}
