package database

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yishak-cs/stylematch/internal/models"
)

const (
	ProductsFile  = "products.csv"
	QuestionsFile = "quiz_questions.csv"
	listSeparator = "|"
)

// Seed is the catalog and quiz loaded from CSV.
type Seed struct {
	Products  []models.CatalogItem
	Questions []models.Question
}

// LoadSeedDir reads products.csv and quiz_questions.csv from dir.
func LoadSeedDir(dir string) (*Seed, error) {
	products, err := readFile(filepath.Join(dir, ProductsFile), ReadProducts)
	if err != nil {
		return nil, err
	}
	questions, err := readFile(filepath.Join(dir, QuestionsFile), ReadQuestions)
	if err != nil {
		return nil, err
	}
	return &Seed{Products: products, Questions: questions}, nil
}

func readFile[T any](path string, read func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	out, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// ReadProducts parses the products CSV. Header:
//
//	id,title,brand,price_cents,tags,style,color,fit,fabric,season,occasion,active
//
// tags, season and occasion are "|"-separated. active defaults to true.
func ReadProducts(r io.Reader) ([]models.CatalogItem, error) {
	rows, err := readRows(r, "id", "title", "price_cents")
	if err != nil {
		return nil, err
	}

	items := make([]models.CatalogItem, 0, len(rows))
	for n, row := range rows {
		price, err := strconv.ParseInt(row.get("price_cents"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: price_cents: %w", n+2, err)
		}
		active := true
		if raw := row.get("active"); raw != "" {
			active, err = strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: active: %w", n+2, err)
			}
		}

		items = append(items, models.CatalogItem{
			ID:    row.get("id"),
			Title: row.get("title"),
			Brand: row.get("brand"),
			Price: models.Money(price),
			Tags:  splitList(row.get("tags")),
			Attributes: models.Attributes{
				Style:     row.get("style"),
				Color:     row.get("color"),
				Fit:       row.get("fit"),
				Fabric:    row.get("fabric"),
				Seasons:   splitList(row.get("season")),
				Occasions: splitList(row.get("occasion")),
			},
			Active: active,
		})
	}
	return items, nil
}

// ReadQuestions parses the quiz questions CSV. Header:
//
//	id,question,type,category,options,min,max,order_index
func ReadQuestions(r io.Reader) ([]models.Question, error) {
	rows, err := readRows(r, "id", "question", "type")
	if err != nil {
		return nil, err
	}

	questions := make([]models.Question, 0, len(rows))
	for n, row := range rows {
		q := models.Question{
			ID:       row.get("id"),
			Prompt:   row.get("question"),
			Type:     models.QuestionType(row.get("type")),
			Category: row.get("category"),
			Options:  splitList(row.get("options")),
		}
		switch q.Type {
		case models.QuestionSingle, models.QuestionMulti, models.QuestionScale:
		default:
			return nil, fmt.Errorf("line %d: unknown question type %q", n+2, q.Type)
		}

		for _, field := range []struct {
			name string
			dst  **int
		}{{"min", &q.Min}, {"max", &q.Max}} {
			raw := row.get(field.name)
			if raw == "" {
				continue
			}
			v, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", n+2, field.name, err)
			}
			*field.dst = &v
		}
		if raw := row.get("order_index"); raw != "" {
			if q.OrderIndex, err = strconv.Atoi(raw); err != nil {
				return nil, fmt.Errorf("line %d: order_index: %w", n+2, err)
			}
		}
		questions = append(questions, q)
	}
	return questions, nil
}

type csvRow struct {
	index  map[string]int
	fields []string
}

func (r csvRow) get(column string) string {
	i, ok := r.index[column]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func readRows(r io.Reader, required ...string) ([]csvRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header")
		}
		return nil, err
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var rows []csvRow
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := csvRow{index: index, fields: fields}
		if row.get(required[0]) == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, listSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
