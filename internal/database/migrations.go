package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/yishak-cs/stylematch/internal/logger"
	"github.com/yishak-cs/stylematch/internal/models"
)

// CSVImporter loads the catalog and the quiz into Neo4j
type CSVImporter struct {
	client *Neo4jClient
	log    *logger.Logger
}

// NewCSVImporter creates a new CSV importer
func NewCSVImporter(client *Neo4jClient, log *logger.Logger) *CSVImporter {
	if log == nil {
		log = logger.NewNop()
	}
	return &CSVImporter{client: client, log: log}
}

// isRemote reports whether Neo4j itself should fetch the files with LOAD CSV.
func isRemote(source string) bool {
	for _, prefix := range []string{"http://", "https://", "file:///"} {
		if strings.HasPrefix(source, prefix) {
			return true
		}
	}
	return false
}

// ImportAllData creates constraints and imports products and questions.
// A URL source is read by the server through LOAD CSV; a local directory is
// parsed here and sent as parameters.
func (i *CSVImporter) ImportAllData(ctx context.Context, source string, clear bool) error {
	i.log.Info("starting seed import", "source", source)

	if clear {
		if err := i.clearDatabase(ctx); err != nil {
			return fmt.Errorf("failed to clear database: %w", err)
		}
	}

	var steps []struct {
		name string
		fn   func(context.Context) error
	}
	add := func(name string, fn func(context.Context) error) {
		steps = append(steps, struct {
			name string
			fn   func(context.Context) error
		}{name, fn})
	}

	add("constraints", i.EnsureSchema)
	if isRemote(source) {
		base := strings.TrimSuffix(source, "/")
		add("products", func(ctx context.Context) error { return i.LoadProductsCSV(ctx, base+"/"+ProductsFile) })
		add("questions", func(ctx context.Context) error { return i.LoadQuestionsCSV(ctx, base+"/"+QuestionsFile) })
	} else {
		seed, err := LoadSeedDir(source)
		if err != nil {
			return err
		}
		add("products", func(ctx context.Context) error { return i.UpsertProducts(ctx, seed.Products) })
		add("questions", func(ctx context.Context) error { return i.UpsertQuestions(ctx, seed.Questions) })
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("failed to import %s: %w", step.name, err)
		}
		i.log.Debug("seed step done", "step", step.name)
	}

	i.log.Info("seed import completed")
	return nil
}

// EnsureSchema creates the uniqueness constraints the stores rely on.
func (i *CSVImporter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{
		`CREATE CONSTRAINT product_id IF NOT EXISTS FOR (p:Product) REQUIRE p.id IS UNIQUE`,
		`CREATE CONSTRAINT question_id IF NOT EXISTS FOR (q:Question) REQUIRE q.id IS UNIQUE`,
		`CREATE CONSTRAINT owner_id IF NOT EXISTS FOR (o:Owner) REQUIRE o.id IS UNIQUE`,
	} {
		if err := i.client.ExecuteWrite(ctx, stmt, nil); err != nil {
			return err
		}
	}
	return nil
}

// LoadProductsCSV imports products with LOAD CSV
func (i *CSVImporter) LoadProductsCSV(ctx context.Context, csvURL string) error {
	query := `
		LOAD CSV WITH HEADERS FROM $csvURL AS row
		WITH row WHERE row.id IS NOT NULL
		MERGE (p:Product {id: row.id})
		SET p.title = row.title,
			p.brand = row.brand,
			p.price_cents = toInteger(row.price_cents),
			p.tags = [t IN split(coalesce(row.tags, ''), '|') WHERE t <> ''],
			p.style = row.style,
			p.color = row.color,
			p.fit = row.fit,
			p.fabric = row.fabric,
			p.seasons = [t IN split(coalesce(row.season, ''), '|') WHERE t <> ''],
			p.occasions = [t IN split(coalesce(row.occasion, ''), '|') WHERE t <> ''],
			p.active = coalesce(toBoolean(row.active), true)
	`
	return i.client.ExecuteWrite(ctx, query, map[string]interface{}{"csvURL": csvURL})
}

// LoadQuestionsCSV imports quiz questions with LOAD CSV
func (i *CSVImporter) LoadQuestionsCSV(ctx context.Context, csvURL string) error {
	query := `
		LOAD CSV WITH HEADERS FROM $csvURL AS row
		WITH row WHERE row.id IS NOT NULL
		MERGE (q:Question {id: row.id})
		SET q.prompt = row.question,
			q.type = row.type,
			q.category = row.category,
			q.options = [o IN split(coalesce(row.options, ''), '|') WHERE o <> ''],
			q.min = toInteger(row.min),
			q.max = toInteger(row.max),
			q.order_index = coalesce(toInteger(row.order_index), 0)
	`
	return i.client.ExecuteWrite(ctx, query, map[string]interface{}{"csvURL": csvURL})
}

// UpsertProducts writes parsed products
func (i *CSVImporter) UpsertProducts(ctx context.Context, items []models.CatalogItem) error {
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]interface{}{
			"id":          item.ID,
			"title":       item.Title,
			"brand":       item.Brand,
			"price_cents": int64(item.Price),
			"tags":        nonNil(item.Tags),
			"style":       item.Attributes.Style,
			"color":       item.Attributes.Color,
			"fit":         item.Attributes.Fit,
			"fabric":      item.Attributes.Fabric,
			"seasons":     nonNil(item.Attributes.Seasons),
			"occasions":   nonNil(item.Attributes.Occasions),
			"active":      item.Active,
		})
	}

	query := `
		UNWIND $rows AS row
		MERGE (p:Product {id: row.id})
		SET p += row
	`
	return i.client.ExecuteWrite(ctx, query, map[string]interface{}{"rows": rows})
}

// UpsertQuestions writes parsed questions
func (i *CSVImporter) UpsertQuestions(ctx context.Context, questions []models.Question) error {
	rows := make([]map[string]interface{}, 0, len(questions))
	for _, q := range questions {
		row := map[string]interface{}{
			"id":          q.ID,
			"prompt":      q.Prompt,
			"type":        string(q.Type),
			"category":    q.Category,
			"options":     nonNil(q.Options),
			"order_index": int64(q.OrderIndex),
			"min":         nil,
			"max":         nil,
		}
		if q.Min != nil {
			row["min"] = int64(*q.Min)
		}
		if q.Max != nil {
			row["max"] = int64(*q.Max)
		}
		rows = append(rows, row)
	}

	query := `
		UNWIND $rows AS row
		MERGE (q:Question {id: row.id})
		SET q += row
	`
	return i.client.ExecuteWrite(ctx, query, map[string]interface{}{"rows": rows})
}

// clearDatabase removes all nodes and relationships
func (i *CSVImporter) clearDatabase(ctx context.Context) error {
	query := `
		MATCH (n)
		DETACH DELETE n
	`

	i.log.Warn("clearing existing database")
	return i.client.ExecuteWrite(ctx, query, nil)
}

// GetImportStatus returns node and relationship counts
func (i *CSVImporter) GetImportStatus(ctx context.Context) (map[string]int, error) {
	query := `
		CALL { MATCH (p:Product) RETURN count(p) AS products }
		CALL { MATCH (q:Question) WHERE q.type IS NOT NULL RETURN count(q) AS questions }
		CALL { MATCH (o:Owner) RETURN count(o) AS owners }
		CALL { MATCH ()-[r:RECOMMENDED]->() RETURN count(r) AS recommendations }
		RETURN products, questions, owners, recommendations
	`

	results, err := i.client.ExecuteRead(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	status := map[string]int{"products": 0, "questions": 0, "owners": 0, "recommendations": 0}
	if len(results) == 0 {
		return status, nil
	}
	for key := range status {
		status[key] = int(asInt64(results[0][key]))
	}
	return status, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
