package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yishak-cs/stylematch/internal/models"
	"github.com/yishak-cs/stylematch/internal/store"
)

// Neo4jStore serves every store contract from the graph:
//
//	(:Product {id, title, brand, price_cents, tags, style, color, fit, fabric, seasons, occasions, active})
//	(:Question {id, prompt, type, category, options, min, max, order_index})
//	(:Owner)-[:ANSWERED {value}]->(:Question)
//	(:Owner)-[:RECOMMENDED {score, reason, position, refresh_id, created_at}]->(:Product)
type Neo4jStore struct {
	client *Neo4jClient
}

var _ store.Backend = (*Neo4jStore)(nil)

// NewNeo4jStore creates a store over an open client.
func NewNeo4jStore(client *Neo4jClient) *Neo4jStore {
	return &Neo4jStore{client: client}
}

func (s *Neo4jStore) Health(ctx context.Context) error { return s.client.Health(ctx) }

func (s *Neo4jStore) Close(ctx context.Context) error { return s.client.Close(ctx) }

// FetchAnswers returns store.ErrNotFound when the owner has never saved an
// answer set.
func (s *Neo4jStore) FetchAnswers(ctx context.Context, ownerID string) ([]models.Answer, error) {
	query := `
		MATCH (o:Owner {id: $ownerId})
		OPTIONAL MATCH (o)-[a:ANSWERED]->(q:Question)
		RETURN q.id AS question_id, a.value AS value
		ORDER BY question_id
	`

	results, err := s.client.ExecuteRead(ctx, query, map[string]interface{}{"ownerId": ownerID})
	if err != nil {
		return nil, mapNeo4jError("fetch answers", err)
	}
	if len(results) == 0 {
		return nil, store.ErrNotFound
	}

	answers := make([]models.Answer, 0, len(results))
	for _, result := range results {
		questionID := asString(result["question_id"])
		if questionID == "" {
			continue
		}
		answers = append(answers, models.Answer{
			QuestionID: questionID,
			Value:      json.RawMessage(asString(result["value"])),
		})
	}
	return answers, nil
}

// ReplaceAnswers swaps the owner's answer set in one transaction.
func (s *Neo4jStore) ReplaceAnswers(ctx context.Context, ownerID string, answers []models.Answer) error {
	rows := make([]map[string]interface{}, 0, len(answers))
	for _, a := range answers {
		value := string(a.Value)
		if value == "" {
			value = "null"
		}
		rows = append(rows, map[string]interface{}{"question_id": a.QuestionID, "value": value})
	}

	err := s.client.ExecuteWriteTransaction(ctx, func(tx neo4j.ManagedTransaction) error {
		params := map[string]interface{}{"ownerId": ownerID, "answers": rows}

		if _, err := tx.Run(ctx, `
			MERGE (o:Owner {id: $ownerId})
			WITH o
			OPTIONAL MATCH (o)-[a:ANSWERED]->()
			DELETE a
		`, params); err != nil {
			return err
		}

		_, err := tx.Run(ctx, `
			MATCH (o:Owner {id: $ownerId})
			UNWIND $answers AS ans
			MERGE (q:Question {id: ans.question_id})
			CREATE (o)-[:ANSWERED {value: ans.value}]->(q)
		`, params)
		return err
	})
	return mapNeo4jError("replace answers", err)
}

func (s *Neo4jStore) FetchQuestions(ctx context.Context) ([]models.Question, error) {
	query := `
		MATCH (q:Question)
		WHERE q.type IS NOT NULL
		RETURN q.id AS id,
			   q.prompt AS prompt,
			   q.type AS type,
			   q.category AS category,
			   q.options AS options,
			   q.min AS min,
			   q.max AS max,
			   q.order_index AS order_index
		ORDER BY order_index, id
	`

	results, err := s.client.ExecuteRead(ctx, query, nil)
	if err != nil {
		return nil, mapNeo4jError("fetch questions", err)
	}

	questions := make([]models.Question, 0, len(results))
	for _, result := range results {
		questions = append(questions, models.Question{
			ID:         asString(result["id"]),
			Prompt:     asString(result["prompt"]),
			Type:       models.QuestionType(asString(result["type"])),
			Category:   asString(result["category"]),
			Options:    asStrings(result["options"]),
			Min:        asIntPtr(result["min"]),
			Max:        asIntPtr(result["max"]),
			OrderIndex: int(asInt64(result["order_index"])),
		})
	}
	return questions, nil
}

func (s *Neo4jStore) FetchActiveCatalog(ctx context.Context) ([]models.CatalogItem, error) {
	query := `
		MATCH (p:Product)
		WHERE coalesce(p.active, true)
		RETURN p.id AS id,
			   p.title AS title,
			   p.brand AS brand,
			   p.price_cents AS price,
			   p.tags AS tags,
			   p.style AS style,
			   p.color AS color,
			   p.fit AS fit,
			   p.fabric AS fabric,
			   p.seasons AS seasons,
			   p.occasions AS occasions
		ORDER BY id
	`

	results, err := s.client.ExecuteRead(ctx, query, nil)
	if err != nil {
		return nil, mapNeo4jError("fetch catalog", err)
	}

	items := make([]models.CatalogItem, 0, len(results))
	for _, result := range results {
		items = append(items, models.CatalogItem{
			ID:         asString(result["id"]),
			Title:      asString(result["title"]),
			Brand:      asString(result["brand"]),
			Price:      models.Money(asInt64(result["price"])),
			Tags:       asStrings(result["tags"]),
			Attributes: models.Attributes{
				Style:     asString(result["style"]),
				Color:     asString(result["color"]),
				Fit:       asString(result["fit"]),
				Fabric:    asString(result["fabric"]),
				Seasons:   asStrings(result["seasons"]),
				Occasions: asStrings(result["occasions"]),
			},
			Active: true,
		})
	}
	return items, nil
}

func (s *Neo4jStore) DeleteForOwner(ctx context.Context, ownerID string) error {
	query := `
		MATCH (:Owner {id: $ownerId})-[r:RECOMMENDED]->()
		DELETE r
	`
	err := s.client.ExecuteWrite(ctx, query, map[string]interface{}{"ownerId": ownerID})
	return mapNeo4jError("delete recommendations", err)
}

func (s *Neo4jStore) Insert(ctx context.Context, rows []models.Recommendation) error {
	if len(rows) == 0 {
		return nil
	}

	params := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		params = append(params, map[string]interface{}{
			"owner_id":   r.OwnerID,
			"product_id": r.ProductID,
			"score":      r.Score,
			"reason":     r.Reason,
			"position":   int64(r.Position),
			"refresh_id": r.RefreshID,
			"created_at": r.CreatedAt,
		})
	}

	query := `
		UNWIND $rows AS row
		MERGE (o:Owner {id: row.owner_id})
		WITH o, row
		MATCH (p:Product {id: row.product_id})
		CREATE (o)-[:RECOMMENDED {
			score: row.score,
			reason: row.reason,
			position: row.position,
			refresh_id: row.refresh_id,
			created_at: row.created_at
		}]->(p)
		RETURN count(*) AS written
	`
	err := s.client.ExecuteWriteTransaction(ctx, func(tx neo4j.ManagedTransaction) error {
		result, err := tx.Run(ctx, query, map[string]interface{}{"rows": params})
		if err != nil {
			return err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return err
		}
		written, _ := record.Get("written")
		// a mismatch rolls the whole batch back
		return checkWritten(int(asInt64(written)), len(rows))
	})
	return mapNeo4jError("insert recommendations", err)
}

// checkWritten fails when rows were dropped because their product is gone.
func checkWritten(written, expected int) error {
	if written != expected {
		return fmt.Errorf("wrote %d of %d recommendations, products missing from catalog", written, expected)
	}
	return nil
}

func (s *Neo4jStore) FetchRanked(ctx context.Context, ownerID string) ([]models.RankedRecommendation, error) {
	query := `
		MATCH (:Owner {id: $ownerId})-[r:RECOMMENDED]->(p:Product)
		RETURN p.id AS product_id,
			   p.title AS title,
			   p.brand AS brand,
			   p.price_cents AS price,
			   p.tags AS tags,
			   r.score AS score,
			   r.reason AS reason,
			   r.position AS position,
			   r.refresh_id AS refresh_id,
			   r.created_at AS created_at
		ORDER BY position
	`

	results, err := s.client.ExecuteRead(ctx, query, map[string]interface{}{"ownerId": ownerID})
	if err != nil {
		return nil, mapNeo4jError("fetch recommendations", err)
	}

	recs := make([]models.RankedRecommendation, 0, len(results))
	for _, result := range results {
		recs = append(recs, models.RankedRecommendation{
			Recommendation: models.Recommendation{
				OwnerID:   ownerID,
				ProductID: asString(result["product_id"]),
				Score:     asFloat(result["score"]),
				Reason:    asString(result["reason"]),
				Position:  int(asInt64(result["position"])),
				RefreshID: asString(result["refresh_id"]),
				CreatedAt: asTime(result["created_at"]),
			},
			Title: asString(result["title"]),
			Brand: asString(result["brand"]),
			Price: models.Money(asInt64(result["price"])),
			Tags:  asStrings(result["tags"]),
		})
	}
	return recs, nil
}

// Record values come back as driver types: int64, float64, string, []any,
// time.Time or nil.

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	}
	return 0
}

func asIntPtr(v interface{}) *int {
	switch v.(type) {
	case int64, int, float64:
		n := int(asInt64(v))
		return &n
	}
	return nil
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	}
	return 0
}

func asStrings(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case neo4j.LocalDateTime:
		return t.Time().UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
