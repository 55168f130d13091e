package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Base scores for keyword hits, which carry no similarity of their own.
const (
	faqBaseScore     = 0.8
	productBaseScore = 0.75
)

// PostgresSource does keyword search over the faqs and products tables.
type PostgresSource struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresSource connects a pgx pool and pings it.
func NewPostgresSource(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL knowledge source connected")
	return &PostgresSource{db: pool, logger: logger}, nil
}

// Migrate executes every *.up.sql file in dir in name order.
func (s *PostgresSource) Migrate(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// AddFAQ inserts an active FAQ entry.
func (s *PostgresSource) AddFAQ(ctx context.Context, question, answer, category string, priority int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO faqs (question, answer, category, priority, is_active)
		VALUES ($1, $2, $3, $4, TRUE)`,
		question, answer, category, priority)
	if err != nil {
		return fmt.Errorf("add faq: %w", err)
	}
	return nil
}

// AddProduct inserts an active product.
func (s *PostgresSource) AddProduct(ctx context.Context, name, description, category string, price float64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO products (name, description, category, price, status)
		VALUES ($1, $2, $3, $4, 'active')`,
		name, description, category, price)
	if err != nil {
		return fmt.Errorf("add product: %w", err)
	}
	return nil
}

// Search returns FAQs whose question and products whose name contain
// query, each capped at half of limit.
func (s *PostgresSource) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	half := max(limit/2, 1)

	faqs, err := s.searchFAQs(ctx, query, half)
	if err != nil {
		return nil, err
	}
	products, err := s.searchProducts(ctx, query, half)
	if err != nil {
		return nil, err
	}
	return append(faqs, products...), nil
}

func (s *PostgresSource) searchFAQs(ctx context.Context, query string, limit int) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, question, answer, category
		FROM faqs
		WHERE is_active AND question ILIKE '%' || $1 || '%'
		ORDER BY priority DESC, id ASC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search faqs: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var id int64
		var question, answer, category string
		if err := rows.Scan(&id, &question, &answer, &category); err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		out = append(out, Candidate{
			ID:        "faq-" + strconv.FormatInt(id, 10),
			Text:      fmt.Sprintf("问题：%s\n答案：%s", question, answer),
			SourceID:  "postgres:faqs",
			Type:      TypeFAQ,
			BaseScore: faqBaseScore,
			Metadata:  map[string]string{"category": category},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search faqs: %w", err)
	}
	return out, nil
}

func (s *PostgresSource) searchProducts(ctx context.Context, query string, limit int) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, price::text, category
		FROM products
		WHERE status = 'active' AND name ILIKE '%' || $1 || '%'
		ORDER BY id ASC
		LIMIT $2`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var id int64
		var name, description, price, category string
		if err := rows.Scan(&id, &name, &description, &price, &category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, Candidate{
			ID:        "product-" + strconv.FormatInt(id, 10),
			Text:      fmt.Sprintf("商品：%s\n描述：%s\n价格：%s", name, description, price),
			SourceID:  "postgres:products",
			Type:      TypeProduct,
			BaseScore: productBaseScore,
			Metadata:  map[string]string{"category": category},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search products: %w", err)
	}
	return out, nil
}

// Close shuts down the connection pool.
func (s *PostgresSource) Close() {
	s.db.Close()
}
