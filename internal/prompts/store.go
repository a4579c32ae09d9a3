// Package prompts loads and resolves the XML prompt library that drives
// every LLM call the query engine makes.
//
// The library groups prompts by site and schema.org item type. A prompt is
// looked up by (site, item type, name): the Site subtree whose ref matches
// the request's site is searched first, falling back to the "default"
// subtree; within a subtree, any type element whose tag equals the item
// type's local name matches, and Thing matches every type. When several
// type elements carry the same prompt name, the one latest in document
// order wins, so libraries list Thing first and overrides after it.
package prompts

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "embed"

	"github.com/askweb/askweb/internal/llm"
	"github.com/askweb/askweb/internal/schemaorg"
)

//go:embed defaults.xml
var defaultsXML []byte

const (
	defaultSiteRef = "default"
	universalType  = "Thing"
)

// Prompt names used by the engine. Libraries may carry additional prompts;
// these are the ones the pipeline asks for.
const (
	DetectItemType      = "DetectItemTypePrompt"
	DetectMultiItemType = "DetectMultiItemTypeQueryPrompt"
	DetectQueryType     = "DetectQueryTypePrompt"
	PrevQueryDecon      = "PrevQueryDecontextualizer"
	ContextDecon        = "DecontextualizeContextPrompt"
	FullDecon           = "FullDecontextualizePrompt"
	DetectIrrelevant    = "DetectIrrelevantQueryPrompt"
	DetectMemory        = "DetectMemoryRequestPrompt"
	RequiredInfo        = "RequiredInfoPrompt"
	Ranking             = "RankingPrompt"
	RankingForGenerate  = "RankingPromptForGenerate"
	Synthesize          = "SynthesizePromptForGenerate"
	ItemDescription     = "DescriptionPromptForGenerate"
	SummarizeResults    = "SummarizeResultsPrompt"
)

// Prompt is one library entry: the template text and the JSON structure the
// model must answer with. Schema is nil when the library carries no
// returnStruc for the prompt.
type Prompt struct {
	Name   string
	Text   string
	Schema llm.Schema
}

// Store resolves prompts against a parsed library. Lookups are cached by
// (site, item type, name), misses included, so repeated resolution during a
// query costs one map read.
type Store struct {
	logger *slog.Logger
	path   string

	mu    sync.RWMutex
	lib   *library
	cache map[cacheKey]cacheEntry

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
	watchWg     sync.WaitGroup
}

type cacheKey struct {
	site     string
	itemType string
	name     string
}

type cacheEntry struct {
	prompt Prompt
	ok     bool
}

// NewStore parses the library at path, or the embedded default library when
// path is empty.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger: logger.With("component", "prompts"),
		path:   path,
		cache:  make(map[cacheKey]cacheEntry),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-parses the library file and drops the lookup cache. A parse
// failure leaves the previous library in place.
func (s *Store) Reload() error {
	data := defaultsXML
	if s.path != "" {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("prompts: read %s: %w", s.path, err)
		}
		data = b
	}
	lib, err := parseLibrary(data, s.logger)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lib = lib
	s.cache = make(map[cacheKey]cacheEntry)
	s.mu.Unlock()

	s.logger.Debug("prompt library loaded", "sites", len(lib.sites), "path", s.path)
	return nil
}

// Find resolves a prompt by site, qualified item type, and name. The second
// return is false when the library has no matching prompt.
func (s *Store) Find(site, itemType, name string) (Prompt, bool) {
	key := cacheKey{site: site, itemType: itemType, name: name}

	s.mu.RLock()
	if e, hit := s.cache[key]; hit {
		s.mu.RUnlock()
		return e.prompt, e.ok
	}
	lib := s.lib
	s.mu.RUnlock()

	prompt, ok := lib.find(site, itemType, name)
	if !ok {
		s.logger.Debug("prompt not found", "name", name, "site", site, "item_type", itemType)
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{prompt: prompt, ok: ok}
	s.mu.Unlock()
	return prompt, ok
}

// library is one parsed document. Sites map to their type elements in
// document order; type elements found outside any Site wrapper belong to
// the default site.
type library struct {
	sites map[string]*siteTree
}

type siteTree struct {
	types []typeNode
}

type typeNode struct {
	tag     string
	prompts []Prompt
}

func (l *library) find(site, itemType, name string) (Prompt, bool) {
	tree, ok := l.sites[site]
	if !ok {
		tree, ok = l.sites[defaultSiteRef]
	}
	if !ok {
		return Prompt{}, false
	}

	local := schemaorg.TypeLocal(itemType)
	var found Prompt
	var have bool
	for _, tn := range tree.types {
		if tn.tag != local && tn.tag != universalType {
			continue
		}
		// Later type elements override earlier ones, so a library can
		// put generic prompts under Thing and refinements after it.
		for _, p := range tn.prompts {
			if p.Name == name {
				found, have = p, true
				break
			}
		}
	}
	return found, have
}

// xmlNode is a generic element: type tags vary by library, so the document
// is parsed shape-free and interpreted by local names.
type xmlNode struct {
	XMLName  xml.Name
	Ref      string    `xml:"ref,attr"`
	Text     string    `xml:",chardata"`
	Children []xmlNode `xml:",any"`
}

func parseLibrary(data []byte, logger *slog.Logger) (*library, error) {
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("prompts: parse library: %w", err)
	}

	lib := &library{sites: make(map[string]*siteTree)}
	for _, child := range root.Children {
		if child.XMLName.Local == "Site" {
			ref := child.Ref
			if ref == "" {
				ref = defaultSiteRef
			}
			tree := lib.site(ref)
			for _, tc := range child.Children {
				tree.types = append(tree.types, parseType(tc, logger))
			}
			continue
		}
		// A bare type element at the top level counts as default-site.
		lib.site(defaultSiteRef).types = append(lib.site(defaultSiteRef).types, parseType(child, logger))
	}
	return lib, nil
}

func (l *library) site(ref string) *siteTree {
	tree, ok := l.sites[ref]
	if !ok {
		tree = &siteTree{}
		l.sites[ref] = tree
	}
	return tree
}

func parseType(node xmlNode, logger *slog.Logger) typeNode {
	tn := typeNode{tag: node.XMLName.Local}
	for _, pc := range node.Children {
		if pc.XMLName.Local != "Prompt" || pc.Ref == "" {
			continue
		}
		p := Prompt{Name: pc.Ref}
		for _, field := range pc.Children {
			switch field.XMLName.Local {
			case "promptString":
				p.Text = strings.TrimSpace(field.Text)
			case "returnStruc":
				text := strings.TrimSpace(field.Text)
				if text == "" {
					continue
				}
				var schema llm.Schema
				if err := json.Unmarshal([]byte(text), &schema); err != nil {
					logger.Warn("invalid returnStruc, ignoring", "prompt", pc.Ref, "type", tn.tag, "error", err)
					continue
				}
				p.Schema = schema
			}
		}
		tn.prompts = append(tn.prompts, p)
	}
	return tn
}
