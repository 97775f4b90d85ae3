package podds

import (
	"context"
	"fmt"
	"time"
)

// Compile-time check to ensure Team implements Persistable interface
var _ Persistable = (*Team)(nil)

// Team represents a football team
type Team struct {
	ID        int64     `json:"id" column:"id" dbtype:"INTEGER NOT NULL" primary:"true"`
	Name      string    `json:"name" column:"name" dbtype:"TEXT NOT NULL" index:"true"`
	ShortName string    `json:"shortName" column:"short_name" dbtype:"TEXT"`
	Country   string    `json:"country" column:"country" dbtype:"TEXT"`
	Logo      string    `json:"logo" column:"logo" dbtype:"TEXT"`
	CreatedAt time.Time `json:"createdAt" column:"created_at" dbtype:"DATETIME" update:"false"`
	UpdatedAt time.Time `json:"updatedAt" column:"updated_at" dbtype:"DATETIME"`
}

// GetPrimaryKey returns the primary key as a map
func (t *Team) GetPrimaryKey() map[string]any {
	return map[string]any{"id": t.ID}
}

// GetTableName returns the table name for teams
func (t *Team) GetTableName() string {
	return "teams"
}

// BeforeSave validates the team and stamps the audit times
func (t *Team) BeforeSave() error {
	if t.ID <= 0 {
		return fmt.Errorf("team id must be positive, got %d", t.ID)
	}
	if t.Name == "" {
		return fmt.Errorf("team %d has no name", t.ID)
	}
	if t.ShortName == "" {
		t.ShortName = t.Name
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	return nil
}

// FindTeam loads a team by id, nil when absent
func (s *Store) FindTeam(ctx context.Context, id int64) (*Team, error) {
	return FindByPrimaryKey[Team](ctx, s, map[string]any{"id": id})
}
