// Package rag answers questions from a small knowledge base using the
// embedding and language model backends.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/edgexpo/voicegateway/internal/clients"
)

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
	defaultTopK         = 3
	defaultWorkers      = 4
	titleRunes          = 50
)

// Fallback answers returned when a query cannot be completed
const (
	FallbackZH = "抱歉，我無法回答您的問題。請稍後再試。"
	FallbackEN = "Sorry, I cannot answer your question. Please try again later."
)

// ErrEmptyContent is returned when a knowledge item has no content
var ErrEmptyContent = errors.New("knowledge item content is empty")

// Embedder produces vectors for chunks and queries
type Embedder interface {
	GetEmbeddings(ctx context.Context, req clients.EmbeddingRequest) ([][]float32, error)
	GetEmbedding(ctx context.Context, text, model string) ([]float32, error)
}

// Generator completes prompts
type Generator interface {
	Generate(ctx context.Context, req clients.CompletionRequest) (string, error)
}

// Config holds the knowledge base settings
type Config struct {
	KnowledgeDir string
	ChunkSize    int
	ChunkOverlap int
	TopK         int
	Workers      int
}

// Item is a knowledge base entry as listed by the API
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
	Chunks   int    `json:"chunks"`
}

type itemRecord struct {
	content  string
	category string
	chunks   int
	custom   bool
}

// Service indexes the knowledge base and answers queries against it
type Service struct {
	cfg      Config
	splitter Splitter
	embedder Embedder
	llm      Generator
	index    *memoryIndex
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.RWMutex
	items map[string]itemRecord

	// fileMu serializes custom_kb.json rewrites
	fileMu sync.Mutex
}

// New loads and indexes the knowledge base. Unreadable files and items that
// fail to embed are logged and skipped.
func New(ctx context.Context, cfg Config, embedder Embedder, llm Generator, logger *slog.Logger) (*Service, error) {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		cfg:      cfg,
		splitter: Splitter{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		embedder: embedder,
		llm:      llm,
		index:    newMemoryIndex(),
		logger:   logger,
		now:      time.Now,
		items:    make(map[string]itemRecord),
	}

	s.load(ctx)
	return s, nil
}

func (s *Service) load(ctx context.Context) {
	var docs []document

	var company companyInfo
	if found, err := readJSON(s.path(companyInfoFile), &company); err != nil {
		s.logger.Error("failed to load company info", "error", err)
	} else if found {
		docs = append(docs, companyDocuments(company)...)
	}

	var qa qaPairs
	if found, err := readJSON(s.path(qaPairsFile), &qa); err != nil {
		s.logger.Error("failed to load qa pairs", "error", err)
	} else if found {
		docs = append(docs, qaDocuments(qa)...)
	}

	var custom customKB
	if found, err := readJSON(s.path(customKBFile), &custom); err != nil {
		s.logger.Error("failed to load custom knowledge", "error", err)
	} else if found {
		docs = append(docs, customDocuments(custom)...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, doc := range docs {
		g.Go(func() error {
			if err := s.add(gctx, doc); err != nil {
				s.logger.Error("failed to index knowledge item", "id", doc.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("knowledge base loaded", "items", s.count(), "chunks", s.index.Len())
}

// add chunks, embeds and indexes one document, replacing any previous version
func (s *Service) add(ctx context.Context, doc document) error {
	texts := s.splitter.Split(doc.Content)
	if len(texts) == 0 {
		return ErrEmptyContent
	}

	vectors, err := s.embedder.GetEmbeddings(ctx, clients.EmbeddingRequest{Texts: texts})
	if err != nil {
		return err
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding backend returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{ItemID: doc.ID, Category: doc.Category, Index: i, Text: text, Vector: vectors[i]}
	}
	s.index.Put(doc.ID, chunks)

	s.mu.Lock()
	s.items[doc.ID] = itemRecord{content: doc.Content, category: doc.Category, chunks: len(chunks), custom: doc.Custom}
	s.mu.Unlock()
	return nil
}

// Query answers query from the knowledge base. Any failure yields a fixed
// apology in the query language instead of an error.
func (s *Service) Query(ctx context.Context, query, language string) string {
	zh := strings.Contains(strings.ToLower(language), "zh")

	answer, err := s.answer(ctx, query, zh)
	if err != nil {
		s.logger.Error("rag query failed", "error", err)
		if zh {
			return FallbackZH
		}
		return FallbackEN
	}
	return answer
}

func (s *Service) answer(ctx context.Context, query string, zh bool) (string, error) {
	vector, err := s.embedder.GetEmbedding(ctx, query, "")
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	seen := make(map[string]bool)
	var parts []string
	for _, chunk := range s.index.Search(vector, s.cfg.TopK) {
		normalized := strings.Join(strings.Fields(chunk.Text), " ")
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		parts = append(parts, chunk.Text)
	}

	prompt := buildPrompt(strings.Join(parts, "\n\n"), query, zh)
	return s.llm.Generate(ctx, clients.CompletionRequest{Prompt: prompt})
}

func buildPrompt(knowledge, query string, zh bool) string {
	if zh {
		return fmt.Sprintf("基於以下相關資訊回答用戶的問題。如果資訊中沒有相關內容，請誠實地說不知道。\n\n"+
			"相關資訊：\n%s\n\n用戶問題：%s\n\n請用繁體中文簡潔回答，限制在50字以內：", knowledge, query)
	}
	return fmt.Sprintf("Answer the user's question based on the following relevant information. "+
		"If the information doesn't contain the answer, honestly say you don't know.\n\n"+
		"Relevant Information:\n%s\n\nUser Question: %s\n\nPlease answer concisely in English, within 50 words:", knowledge, query)
}

// ListItems returns every indexed item ordered by id
func (s *Service) ListItems() []Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Item, 0, len(s.items))
	for id, rec := range s.items {
		items = append(items, Item{
			ID:       id,
			Title:    title(id, rec.content),
			Category: rec.category,
			Content:  rec.content,
			Chunks:   rec.chunks,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// title is the first content line, cut to 50 runes
func title(id, content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	if line == "" {
		return id
	}
	if utf8.RuneCountInString(line) > titleRunes {
		line = string([]rune(line)[:titleRunes])
	}
	return line
}

// UpdateItem creates or replaces an item and persists it to custom_kb.json.
// An empty id creates a new item; the item id is returned.
func (s *Service) UpdateItem(ctx context.Context, id, content, category string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	if category == "" {
		category = defaultCategory
	}
	if id == "" {
		id = newItemID(s.now().Unix())
	}

	if err := s.add(ctx, document{ID: id, Content: content, Category: category, Custom: true}); err != nil {
		return "", fmt.Errorf("failed to index knowledge item: %w", err)
	}

	err := s.rewriteCustom(func(kb *customKB) {
		for i := range kb.Items {
			if kb.Items[i].ID == id {
				kb.Items[i].Content = content
				kb.Items[i].Category = category
				return
			}
		}
		kb.Items = append(kb.Items, customItem{ID: id, Content: content, Category: category})
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// DeleteItem removes an item from the index and from custom_kb.json. It
// reports false when the item does not exist.
func (s *Service) DeleteItem(id string) (bool, error) {
	s.mu.Lock()
	rec, ok := s.items[id]
	if ok {
		delete(s.items, id)
	}
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	s.index.Remove(id)

	if !rec.custom {
		return true, nil
	}
	err := s.rewriteCustom(func(kb *customKB) {
		kept := kb.Items[:0]
		for _, item := range kb.Items {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		kb.Items = kept
	})
	return true, err
}

func (s *Service) rewriteCustom(update func(kb *customKB)) error {
	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	path := s.path(customKBFile)
	kb := customKB{Items: []customItem{}}
	if _, err := readJSON(path, &kb); err != nil {
		return err
	}
	update(&kb)
	return writeJSON(path, kb)
}

// ItemCount returns the number of indexed items
func (s *Service) ItemCount() int {
	return s.count()
}

func (s *Service) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Service) path(name string) string {
	return filepath.Join(s.cfg.KnowledgeDir, name)
}
