// Package entities holds the domain records persisted into the single
// table. All attributes are flat scalars; composite keys and status tokens
// are derived by domain/keys and attached at the persistence layer.
package entities

import (
	"time"

	"github.com/google/uuid"

	"meterhub-backend/domain/keys"
)

// Project is a root entity owned by a user. Its lifecycle runs
// created -> approved|rejected, with archived as soft delete. Approved
// projects can be minted as blockchain assets.
type Project struct {
	ID       string
	UserID   string
	Name     string
	ImageURL string
	Status   string
	AssetID  string
	Created  int64
}

// NewProject creates a project in the "created" state.
func NewProject(userID, name, imageURL string) *Project {
	return &Project{
		ID:       uuid.New().String(),
		UserID:   userID,
		Name:     name,
		ImageURL: imageURL,
		Status:   keys.StatusCreated,
		Created:  time.Now().UnixMilli(),
	}
}

// Reviewable reports whether the project can still be approved or rejected.
func (p *Project) Reviewable() bool {
	return p.Status == keys.StatusCreated
}
