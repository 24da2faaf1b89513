package rulebook

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/example/waste-sort/internal/category"
	"github.com/example/waste-sort/internal/logging"
	"github.com/example/waste-sort/internal/resolver"
)

const (
	categoriesCollection = "waste_categories"
	configCollection     = "config"
	guideDocumentID      = "rules"
	labelsDocumentID     = "labels"
)

type categoryDocument struct {
	ID             string   `bson:"_id"`
	Name           string   `bson:"name"`
	NameEn         string   `bson:"name_en"`
	Color          string   `bson:"color"`
	Instructions   string   `bson:"instructions"`
	InstructionsEn string   `bson:"instructions_en"`
	Description    string   `bson:"description,omitempty"`
	DescriptionEn  string   `bson:"description_en,omitempty"`
	Examples       []string `bson:"examples,omitempty"`
}

type guideDocument struct {
	ID           string   `bson:"_id"`
	Title        string   `bson:"title"`
	TitleEn      string   `bson:"title_en"`
	GeneralRules []string `bson:"general_rules"`
}

type labelsDocument struct {
	ID                string            `bson:"_id"`
	ContainerKeywords []string          `bson:"container_keywords"`
	FoodKeywords      []string          `bson:"food_keywords"`
	Exact             map[string]string `bson:"exact"`
}

// Store keeps the rule book in a MongoDB database: one document per category
// in waste_categories, and the guide and label tables in config.
type Store struct {
	db     *mongo.Database
	logger *zap.Logger
}

// NewStore creates a store over db.
func NewStore(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("rulebook_store")}
}

// Connect opens a MongoDB client and pings it.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, logging.NewOperationError("rulebook.mongo_connect", "", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, logging.NewOperationError("rulebook.mongo_ping", "", err)
	}
	return client, nil
}

// Load reads the rule book. A missing labels document yields the built-in table.
func (s *Store) Load(ctx context.Context) (*Book, error) {
	cur, err := s.db.Collection(categoriesCollection).Find(ctx, bson.D{})
	if err != nil {
		return nil, logging.NewOperationError("rulebook.load_categories", "", err)
	}
	var cats []categoryDocument
	if err := cur.All(ctx, &cats); err != nil {
		return nil, logging.NewOperationError("rulebook.load_categories", "", err)
	}

	var guide guideDocument
	err = s.db.Collection(configCollection).FindOne(ctx, bson.M{"_id": guideDocumentID}).Decode(&guide)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, logging.NewOperationError("rulebook.load_guide", "", err)
	}

	var labels *labelsDocument
	var doc labelsDocument
	err = s.db.Collection(configCollection).FindOne(ctx, bson.M{"_id": labelsDocumentID}).Decode(&doc)
	switch {
	case err == nil:
		labels = &doc
	case errors.Is(err, mongo.ErrNoDocuments):
		s.logger.Info("no label tables stored, using built-in table")
	default:
		return nil, logging.NewOperationError("rulebook.load_labels", "", err)
	}

	return bookFromDocuments(cats, guide, labels), nil
}

// Seed upserts every part of book, replacing what is stored.
func (s *Store) Seed(ctx context.Context, book *Book) error {
	catDocs, guide, labels := documentsFromBook(book)
	upsert := options.Replace().SetUpsert(true)

	for _, doc := range catDocs {
		if _, err := s.db.Collection(categoriesCollection).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, upsert); err != nil {
			return logging.NewOperationError("rulebook.seed_category", doc.ID, err)
		}
	}
	if _, err := s.db.Collection(configCollection).ReplaceOne(ctx, bson.M{"_id": guide.ID}, guide, upsert); err != nil {
		return logging.NewOperationError("rulebook.seed_guide", "", err)
	}
	if _, err := s.db.Collection(configCollection).ReplaceOne(ctx, bson.M{"_id": labels.ID}, labels, upsert); err != nil {
		return logging.NewOperationError("rulebook.seed_labels", "", err)
	}

	s.logger.Info("rule book seeded", zap.Int("categories", len(catDocs)))
	return nil
}

func bookFromDocuments(cats []categoryDocument, guide guideDocument, labels *labelsDocument) *Book {
	book := &Book{
		Categories: make([]category.Category, 0, len(cats)),
		Guide: category.Guide{
			Title:        guide.Title,
			TitleEn:      guide.TitleEn,
			GeneralRules: guide.GeneralRules,
		},
	}
	for _, c := range cats {
		book.Categories = append(book.Categories, category.Category{
			ID:             category.ID(c.ID),
			Name:           c.Name,
			NameEn:         c.NameEn,
			Color:          c.Color,
			Instructions:   c.Instructions,
			InstructionsEn: c.InstructionsEn,
			Description:    c.Description,
			DescriptionEn:  c.DescriptionEn,
			Examples:       c.Examples,
		})
	}
	if labels != nil {
		table := resolver.Table{
			ContainerKeywords: labels.ContainerKeywords,
			FoodKeywords:      labels.FoodKeywords,
			Exact:             make(map[string]category.ID, len(labels.Exact)),
		}
		for label, id := range labels.Exact {
			table.Exact[label] = category.ID(id)
		}
		book.Labels = &table
	}
	return book
}

func documentsFromBook(book *Book) ([]categoryDocument, guideDocument, labelsDocument) {
	cats := make([]categoryDocument, 0, len(book.Categories))
	for _, c := range book.Categories {
		cats = append(cats, categoryDocument{
			ID:             string(c.ID),
			Name:           c.Name,
			NameEn:         c.NameEn,
			Color:          c.Color,
			Instructions:   c.Instructions,
			InstructionsEn: c.InstructionsEn,
			Description:    c.Description,
			DescriptionEn:  c.DescriptionEn,
			Examples:       c.Examples,
		})
	}

	guide := guideDocument{
		ID:           guideDocumentID,
		Title:        book.Guide.Title,
		TitleEn:      book.Guide.TitleEn,
		GeneralRules: book.Guide.GeneralRules,
	}

	table := book.LabelTable()
	labels := labelsDocument{
		ID:                labelsDocumentID,
		ContainerKeywords: table.ContainerKeywords,
		FoodKeywords:      table.FoodKeywords,
		Exact:             make(map[string]string, len(table.Exact)),
	}
	for label, id := range table.Exact {
		labels.Exact[label] = string(id)
	}
	return cats, guide, labels
}

