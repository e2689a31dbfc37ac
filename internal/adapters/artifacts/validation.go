package artifacts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

var unsafeAllowPattern = regexp.MustCompile(`@custom:oz-upgrades-unsafe-allow(?:-reachable)?[ \t]+([a-z\- \t]+)`)

// parseAnnotations returns the kinds listed in @custom:oz-upgrades-unsafe-allow tags
func parseAnnotations(doc string) []string {
	var out []string
	for _, m := range unsafeAllowPattern.FindAllStringSubmatch(doc, -1) {
		out = append(out, strings.Fields(m[1])...)
	}
	return out
}

func allowedKinds(annotations []string) []models.ValidationErrorKind {
	return lo.FilterMap(annotations, func(a string, _ int) (models.ValidationErrorKind, bool) {
		kind := models.ValidationErrorKind(a)
		return kind, lo.Contains(models.KnownErrorKinds, kind)
	})
}

// contractAnnotations reads the contract-level unsafe-allow tags, from the AST when
// present and from the devdoc otherwise
func contractAnnotations(e *entry) []string {
	if def := contractDefinition(e.ast, e.contract.Name); def != nil {
		return parseAnnotations(documentation(def))
	}
	if tag, ok := e.devdoc["custom:oz-upgrades-unsafe-allow"].(string); ok {
		return strings.Fields(tag)
	}
	return nil
}

// findings collects the unsafe patterns of a contract and the contracts it inherits from.
// Patterns annotated on the enclosing function or variable are left out.
func (r *Repository) findings(e *entry) []models.ValidationError {
	var out []models.ValidationError

	def := contractDefinition(e.ast, e.contract.Name)
	if def == nil {
		// without an AST only what the bytecode shows can be checked
		if e.contract.HasConstructor {
			out = append(out, models.ValidationError{Kind: models.ErrorKindConstructor, Contract: e.contract.Name})
		}
		if len(e.contract.ImmutableReferences) > 0 {
			out = append(out, models.ValidationError{Kind: models.ErrorKindStateVariableImmutable, Contract: e.contract.Name})
		}
	} else {
		seen := map[string]bool{}
		r.walkContract(e, def, seen, &out)
	}

	for _, lib := range e.contract.LinkReferences.Libraries() {
		out = append(out, models.ValidationError{
			Kind:     models.ErrorKindExternalLibraryLinking,
			Contract: e.contract.Name,
			Detail:   lib,
		})
	}
	return out
}

func (r *Repository) walkContract(e *entry, def map[string]any, seen map[string]bool, out *[]models.ValidationError) {
	name, _ := def["name"].(string)
	if seen[name] {
		return
	}
	seen[name] = true

	contractAllowed := parseAnnotations(documentation(def))
	report := func(kind models.ValidationErrorKind, src, detail string, allowed []string) {
		if lo.Contains(allowed, string(kind)) || lo.Contains(contractAllowed, string(kind)) {
			return
		}
		*out = append(*out, models.ValidationError{Kind: kind, Contract: name, Src: src, Detail: detail})
	}

	for _, node := range children(def, "nodes") {
		switch node["nodeType"] {
		case "VariableDeclaration":
			if node["stateVariable"] != true {
				continue
			}
			varName, _ := node["name"].(string)
			src, _ := node["src"].(string)
			allowed := parseAnnotations(documentation(node))
			switch node["mutability"] {
			case "immutable":
				report(models.ErrorKindStateVariableImmutable, src, varName, allowed)
			case "constant":
			default:
				if node["value"] != nil {
					report(models.ErrorKindStateVariableAssignment, src, varName, allowed)
				}
			}
		case "FunctionDefinition":
			src, _ := node["src"].(string)
			allowed := parseAnnotations(documentation(node))
			fnName, _ := node["name"].(string)
			if node["kind"] == "constructor" {
				fnName = "constructor"
				report(models.ErrorKindConstructor, src, "", allowed)
			}
			walk(node["body"], func(n map[string]any) {
				nsrc, _ := n["src"].(string)
				switch {
				case n["nodeType"] == "MemberAccess" && n["memberName"] == "delegatecall":
					report(models.ErrorKindDelegateCall, nsrc, fmt.Sprintf("in %s", fnName), allowed)
				case n["nodeType"] == "Identifier" && (n["name"] == "selfdestruct" || n["name"] == "suicide"):
					report(models.ErrorKindSelfDestruct, nsrc, fmt.Sprintf("in %s", fnName), allowed)
				}
			})
		}
	}

	for _, base := range children(def, "baseContracts") {
		baseName, _ := nested(base, "baseName")["name"].(string)
		if baseName == "" {
			continue
		}
		// the base may be declared in the same file or come from another artifact
		if baseDef := contractDefinition(e.ast, baseName); baseDef != nil {
			r.walkContract(e, baseDef, seen, out)
			continue
		}
		if candidates := r.byName[baseName]; len(candidates) > 0 {
			if baseDef := contractDefinition(candidates[0].ast, baseName); baseDef != nil {
				r.walkContract(candidates[0], baseDef, seen, out)
			}
		}
	}
}

// contractDefinition finds a contract node in a source unit AST
func contractDefinition(ast map[string]any, name string) map[string]any {
	for _, node := range children(ast, "nodes") {
		if node["nodeType"] == "ContractDefinition" && node["name"] == name {
			return node
		}
	}
	return nil
}

// documentation returns the doc text of a node. Older compilers emit a plain string.
func documentation(node map[string]any) string {
	switch doc := node["documentation"].(type) {
	case string:
		return doc
	case map[string]any:
		text, _ := doc["text"].(string)
		return text
	}
	return ""
}

func nested(node map[string]any, key string) map[string]any {
	m, _ := node[key].(map[string]any)
	return m
}

func children(node map[string]any, key string) []map[string]any {
	list, _ := node[key].([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// walk visits every object nested in v
func walk(v any, visit func(map[string]any)) {
	switch n := v.(type) {
	case map[string]any:
		visit(n)
		for _, child := range n {
			walk(child, visit)
		}
	case []any:
		for _, child := range n {
			walk(child, visit)
		}
	}
}
