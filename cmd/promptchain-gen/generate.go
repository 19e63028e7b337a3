package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"

	"github.com/skosovsky/promptchain"
	"github.com/skosovsky/promptchain/manifest"
)

const pkgPromptchain = "github.com/skosovsky/promptchain"

// header marks the output as generated so linters and reviewers skip it.
const header = "Code generated by promptchain-gen. DO NOT EDIT."

// initialisms are upper-cased whole when they form a name segment.
var initialisms = map[string]string{
	"id": "ID", "url": "URL", "api": "API", "json": "JSON", "http": "HTTP", "ui": "UI", "ux": "UX",
}

// collect returns the manifest files named by paths. Directories contribute their
// *.yaml and *.yml files, skipping environment variants such as name.production.yaml.
func collect(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !isBaseManifest(e) {
				continue
			}
			files = append(files, filepath.Join(p, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no manifests found in %s", strings.Join(paths, ", "))
	}
	return files, nil
}

func isBaseManifest(e fs.DirEntry) bool {
	ext := filepath.Ext(e.Name())
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	return !strings.Contains(strings.TrimSuffix(e.Name(), ext), ".")
}

// load parses every file and orders the templates by id. Duplicate ids are rejected.
func load(files []string) ([]*promptchain.ChatPromptTemplate, error) {
	seen := make(map[string]string, len(files))
	out := make([]*promptchain.ChatPromptTemplate, 0, len(files))
	for _, f := range files {
		tpl, err := manifest.ParseFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		id := tpl.Metadata.ID
		if prev, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicate template id %q in %s and %s", id, prev, f)
		}
		seen[id] = f
		out = append(out, tpl)
	}
	slices.SortFunc(out, func(a, b *promptchain.ChatPromptTemplate) int {
		return strings.Compare(a.Metadata.ID, b.Metadata.ID)
	})
	return out, nil
}

// generate writes one file declaring, per template, an id constant and an input struct
// whose prompt tags match the template's unbound variables.
func generate(w io.Writer, pkg string, templates []*promptchain.ChatPromptTemplate) error {
	f := jen.NewFile(pkg)
	f.HeaderComment(header)

	ids := make([]jen.Code, 0, len(templates))
	for _, tpl := range templates {
		ids = append(ids, jen.Id(goName(tpl.Metadata.ID)+"ID"))
	}
	f.Comment("TemplateIDs lists every generated template id.")
	f.Var().Id("TemplateIDs").Op("=").Index().String().Values(ids...)

	for _, tpl := range templates {
		if err := generateTemplate(f, tpl); err != nil {
			return err
		}
	}
	return f.Render(w)
}

func generateTemplate(f *jen.File, tpl *promptchain.ChatPromptTemplate) error {
	md := tpl.Metadata
	base := goName(md.ID)
	if base == "" {
		return fmt.Errorf("template id %q yields no Go identifier", md.ID)
	}

	idConst := base + "ID"
	f.Line()
	if md.Description != "" {
		f.Commentf("%s is the id of the %q template: %s", idConst, md.ID, md.Description)
	} else {
		f.Commentf("%s is the id of the %q template.", idConst, md.ID)
	}
	f.Const().Id(idConst).Op("=").Lit(md.ID)

	vars := tpl.InputVariables()
	if len(vars) == 0 {
		return nil
	}
	history := historyVars(tpl)
	fields := make([]jen.Code, 0, len(vars))
	used := make(map[string]string, len(vars))
	for _, v := range vars {
		name := goName(v)
		if prev, ok := used[name]; ok {
			return fmt.Errorf("template %q: variables %q and %q both map to field %s", md.ID, prev, v, name)
		}
		used[name] = v
		field := jen.Id(name)
		if history[v] {
			field = field.Index().Qual(pkgPromptchain, "ChatMessage")
		} else {
			field = field.String()
		}
		fields = append(fields, field.Tag(map[string]string{"prompt": v}))
	}

	input := base + "Input"
	f.Line()
	f.Commentf("%s holds the variables of the %q template.", input, md.ID)
	f.Type().Id(input).Struct(fields...)

	f.Line()
	f.Commentf("Format renders tpl with in. tpl should be the %q template.", md.ID)
	f.Func().Params(jen.Id("in").Id(input)).Id("Format").Params(
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("tpl").Op("*").Qual(pkgPromptchain, "ChatPromptTemplate"),
	).Params(jen.Op("*").Qual(pkgPromptchain, "PromptValue"), jen.Error()).Block(
		jen.Return(jen.Id("tpl").Dot("FormatStruct").Call(jen.Id("ctx"), jen.Id("in"))),
	)
	return nil
}

// historyVars returns the variables bound by history placeholders.
func historyVars(tpl *promptchain.ChatPromptTemplate) map[string]bool {
	out := make(map[string]bool)
	for _, m := range tpl.Messages {
		if m.Placeholder {
			out[strings.Trim(strings.TrimSpace(m.Content), "{}")] = true
		}
	}
	return out
}

// goName turns snake, kebab or dotted names into an exported identifier:
// "chat_history" becomes ChatHistory, "user-id" becomes UserID.
func goName(s string) string {
	var b strings.Builder
	for part := range strings.FieldsFuncSeq(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if up, ok := initialisms[strings.ToLower(part)]; ok {
			b.WriteString(up)
			continue
		}
		rs := []rune(part)
		rs[0] = unicode.ToUpper(rs[0])
		b.WriteString(string(rs))
	}
	out := b.String()
	if out != "" && unicode.IsDigit([]rune(out)[0]) {
		out = "T" + out
	}
	return out
}
