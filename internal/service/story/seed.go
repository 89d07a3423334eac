package story

import (
	"context"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed demo_stories.yaml
var demoStories []byte

// SeedDemo inserts the bundled sample stories when no story exists yet and
// reports how many were created.
func (s *Service) SeedDemo(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count stories: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	var stories []NewStory
	if err := yaml.Unmarshal(demoStories, &stories); err != nil {
		return 0, fmt.Errorf("decode demo stories: %w", err)
	}
	for _, in := range stories {
		if _, _, err := s.CreateStory(ctx, in); err != nil {
			return 0, fmt.Errorf("seed %q: %w", in.Title, err)
		}
	}
	return len(stories), nil
}
