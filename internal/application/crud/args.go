package crud

import (
	"strings"

	"github.com/lllypuk/claimservice/internal/application/appcore"
	"github.com/lllypuk/claimservice/internal/domain/entity"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// Where is the filter part of a find-many request.
type Where struct {
	// Conditions apply to scalar fields and single relations.
	Conditions []entity.Condition
	// Related maps a Many relation to child ids; a record matches if any of
	// those children belongs to it.
	Related map[string][]string
}

// IsEmpty reports whether the filter imposes no constraint.
func (w Where) IsEmpty() bool {
	if len(w.Conditions) > 0 {
		return false
	}
	for _, ids := range w.Related {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// FindManyArgs is a find-many request.
type FindManyArgs struct {
	Where Where
	// SortBy is "field", "field:asc" or "field:desc".
	SortBy string
	Skip   *int
	Take   *int
}

// ParseSort turns a SortBy expression into store sort keys. The id is always
// the last key so equal values keep a stable order.
func ParseSort(s *entity.Schema, sortBy string) ([]entity.Sort, error) {
	idSort := entity.Sort{Field: entity.FieldID}
	sortBy = strings.TrimSpace(sortBy)
	if sortBy == "" {
		return []entity.Sort{idSort}, nil
	}

	name, dir, _ := strings.Cut(sortBy, ":")
	dir = strings.ToLower(strings.TrimSpace(dir))
	if dir == "" {
		dir = SortAsc
	}
	if err := appcore.ValidateEnum("sortBy", dir, []string{SortAsc, SortDesc}); err != nil {
		return nil, err
	}

	f, ok := s.Field(strings.TrimSpace(name))
	if !ok || f.Kind == entity.KindStrings {
		return nil, entity.NewFieldError("sortBy", "unknown sort field "+name)
	}

	keys := []entity.Sort{{Field: f.Name, Desc: dir == SortDesc}}
	if f.Name != entity.FieldID {
		keys = append(keys, idSort)
	}
	return keys, nil
}
