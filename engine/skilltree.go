package engine

import (
	"context"

	"readquest/core"
)

// SkillNode is one skill of the tree as seen by a reader.
type SkillNode struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tier        int    `json:"tier"`
	Unlocked    bool   `json:"unlocked"`
	Hint        string `json:"hint,omitempty"`
}

// SkillPath is one lane of the tree in table order.
type SkillPath struct {
	Path   string      `json:"path"`
	Skills []SkillNode `json:"skills"`
}

// SkillTree lays out every skill rule grouped by path with its unlock state.
// Hint lists missing prerequisites; they are advisory and never block an unlock.
func (s *Service) SkillTree(ctx context.Context, user core.UserID) ([]SkillPath, error) {
	p, err := s.GetProfile(ctx, user)
	if err != nil {
		return nil, err
	}
	tables := s.engine.Tables()

	out := make([]SkillPath, 0, len(tables.Paths()))
	index := map[string]int{}
	for _, r := range tables.Skills {
		i, ok := index[r.Path]
		if !ok {
			i = len(out)
			index[r.Path] = i
			out = append(out, SkillPath{Path: r.Path})
		}
		node := SkillNode{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Tier:        r.Tier,
			Unlocked:    p.Stats.HasSkill(r.ID),
		}
		if !node.Unlocked {
			node.Hint = tables.RequiresHint(r, p.Stats.Skills)
		}
		out[i].Skills = append(out[i].Skills, node)
	}
	return out, nil
}
