package rag

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Knowledge base files under the knowledge directory
const (
	companyInfoFile = "company_info.json"
	qaPairsFile     = "qa_pairs.json"
	customKBFile    = "custom_kb.json"
)

const defaultCategory = "general"

// document is a knowledge item before chunking
type document struct {
	ID       string
	Content  string
	Category string
	Custom   bool
}

type companyInfo struct {
	Company struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Founded     string `json:"founded"`
		Address     string `json:"address"`
		Phone       string `json:"phone"`
		Email       string `json:"email"`
		Website     string `json:"website"`
	} `json:"company"`
	Products []struct {
		ID             string   `json:"id"`
		Name           string   `json:"name"`
		Description    string   `json:"description"`
		Price          any      `json:"price"`
		Specifications []string `json:"specifications"`
	} `json:"products"`
}

type qaPairs struct {
	QAPairs []struct {
		ID       string   `json:"id"`
		Question string   `json:"question"`
		Answer   string   `json:"answer"`
		Keywords []string `json:"keywords"`
		Category string   `json:"category"`
	} `json:"qa_pairs"`
}

// customKB is the on-disk form of items edited through the API
type customKB struct {
	Items []customItem `json:"items"`
}

type customItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// readJSON decodes path into v. A missing file reports found=false.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// writeJSON replaces path atomically
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create knowledge dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".kb-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}

func companyDocuments(info companyInfo) []document {
	var docs []document

	c := info.Company
	if c.Name != "" || c.Description != "" {
		docs = append(docs, document{
			ID:       "company_info",
			Category: "company",
			Content: fmt.Sprintf("公司名稱：%s\n公司簡介：%s\n成立時間：%s\n地址：%s\n聯絡電話：%s\n電子郵件：%s\n網站：%s",
				c.Name, c.Description, c.Founded, c.Address, c.Phone, c.Email, c.Website),
		})
	}

	for _, p := range info.Products {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		price := ""
		if p.Price != nil {
			price = fmt.Sprint(p.Price)
		}
		docs = append(docs, document{
			ID:       "product_" + id,
			Category: "product",
			Content: fmt.Sprintf("產品名稱：%s\n產品描述：%s\n價格：%s\n規格：%s",
				p.Name, p.Description, price, strings.Join(p.Specifications, ", ")),
		})
	}
	return docs
}

func qaDocuments(qa qaPairs) []document {
	docs := make([]document, 0, len(qa.QAPairs))
	for _, pair := range qa.QAPairs {
		id := pair.ID
		if id == "" {
			id = uuid.NewString()
		}
		category := pair.Category
		if category == "" {
			category = defaultCategory
		}
		docs = append(docs, document{
			ID:       id,
			Category: category,
			Content: fmt.Sprintf("問題：%s\n答案：%s\n關鍵詞：%s",
				pair.Question, pair.Answer, strings.Join(pair.Keywords, ", ")),
		})
	}
	return docs
}

func customDocuments(kb customKB) []document {
	docs := make([]document, 0, len(kb.Items))
	for _, item := range kb.Items {
		if item.ID == "" || strings.TrimSpace(item.Content) == "" {
			continue
		}
		category := item.Category
		if category == "" {
			category = defaultCategory
		}
		docs = append(docs, document{ID: item.ID, Content: item.Content, Category: category, Custom: true})
	}
	return docs
}

// newItemID returns kb_<unix seconds>_<8 hex>
func newItemID(unix int64) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("kb_%d_%s", unix, hex[:8])
}
