// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package treesitter

import (
	"fmt"
	"slices"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/sql"

	"github.com/datacamp/protowhat/services/sct/tree"
)

// Grammar pairs a tree-sitter language with the catalogue describing its
// node kinds to checks.
type Grammar struct {
	// Name is the language name, e.g. "python".
	Name string

	// Language is the tree-sitter grammar.
	Language *sitter.Language

	// Catalogue holds priorities, display names and aliases. Kinds missing
	// from it get priority 0, so searches always descend through them.
	Catalogue *tree.Catalogue
}

// Python returns the Python grammar.
//
// Aliases follow the Python ast module: Expr, Assign, Call, FunctionDef
// and so on. tree-sitter wraps assignments in an expression_statement, so
// Assign sits one priority level below Expr.
func Python() Grammar {
	cat := tree.NewCatalogue("python",
		tree.KindInfo{Kind: "module", Priority: 0},
		tree.KindInfo{Kind: "expression_statement", Priority: 1, Display: "expression"},
		tree.KindInfo{Kind: "assignment", Priority: 2, Display: "assignment",
			Fields: map[string]string{"left": "assigned name", "right": "assigned value"}},
		tree.KindInfo{Kind: "function_definition", Priority: 1, Display: "function definition",
			Fields: map[string]string{"parameters": "parameter list"}},
		tree.KindInfo{Kind: "class_definition", Priority: 1, Display: "class definition"},
		tree.KindInfo{Kind: "if_statement", Priority: 1, Display: "if statement",
			Fields:     map[string]string{"consequence": "if body", "alternative": "else part"},
			ListFields: []string{"alternative"}},
		tree.KindInfo{Kind: "for_statement", Priority: 1, Display: "for loop"},
		tree.KindInfo{Kind: "while_statement", Priority: 1, Display: "while loop"},
		tree.KindInfo{Kind: "return_statement", Priority: 1, Display: "return statement"},
		tree.KindInfo{Kind: "import_statement", Priority: 1, Display: "import",
			Fields: map[string]string{"name": "imported name"}, ListFields: []string{"name"}},
		tree.KindInfo{Kind: "import_from_statement", Priority: 1, Display: "import",
			Fields: map[string]string{"name": "imported name"}, ListFields: []string{"name"}},
		tree.KindInfo{Kind: "augmented_assignment", Priority: 2, Display: "assignment"},
		tree.KindInfo{Kind: "call", Priority: 3, Display: "function call",
			Fields: map[string]string{"function": "called function", "arguments": "argument list"}},
		tree.KindInfo{Kind: "binary_operator", Priority: 3, Display: "binary operation",
			Fields: map[string]string{"left": "left operand", "right": "right operand"}},
		tree.KindInfo{Kind: "comparison_operator", Priority: 3, Display: "comparison"},
		tree.KindInfo{Kind: "identifier", Priority: 4, Display: "name"},
		tree.KindInfo{Kind: "integer", Priority: 4, Display: "number"},
		tree.KindInfo{Kind: "float", Priority: 4, Display: "number"},
		tree.KindInfo{Kind: "string", Priority: 4, Display: "string"},
		tree.KindInfo{Kind: "statement", Priority: 1, Display: "statement",
			Subkinds: []string{"expression_statement", "function_definition", "class_definition",
				"if_statement", "for_statement", "while_statement", "return_statement",
				"import_statement", "import_from_statement"}},
	).
		Alias("Module", "module").
		Alias("Expr", "expression_statement").
		Alias("Assign", "assignment").
		Alias("FunctionDef", "function_definition").
		Alias("ClassDef", "class_definition").
		Alias("If", "if_statement").
		Alias("For", "for_statement").
		Alias("While", "while_statement").
		Alias("Return", "return_statement").
		Alias("Import", "import_statement").
		Alias("ImportFrom", "import_from_statement").
		Alias("Call", "call").
		Alias("BinOp", "binary_operator").
		Alias("Compare", "comparison_operator").
		Alias("Name", "identifier").
		Alias("Num", "integer").
		Alias("Str", "string").
		Alias("Stmt", "statement")

	return Grammar{Name: "python", Language: python.GetLanguage(), Catalogue: cat}
}

// Go returns the Go grammar.
func Go() Grammar {
	cat := tree.NewCatalogue("go",
		tree.KindInfo{Kind: "source_file", Priority: 0, Display: "file"},
		tree.KindInfo{Kind: "package_clause", Priority: 1, Display: "package clause"},
		tree.KindInfo{Kind: "import_declaration", Priority: 1, Display: "import declaration"},
		tree.KindInfo{Kind: "function_declaration", Priority: 1, Display: "function declaration",
			Fields: map[string]string{"parameters": "parameter list"}},
		tree.KindInfo{Kind: "short_var_declaration", Priority: 2, Display: "short variable declaration"},
		tree.KindInfo{Kind: "assignment_statement", Priority: 2, Display: "assignment"},
		tree.KindInfo{Kind: "return_statement", Priority: 2, Display: "return statement"},
		tree.KindInfo{Kind: "if_statement", Priority: 2, Display: "if statement"},
		tree.KindInfo{Kind: "for_statement", Priority: 2, Display: "for loop"},
		tree.KindInfo{Kind: "call_expression", Priority: 3, Display: "function call"},
		tree.KindInfo{Kind: "var_spec", Display: "variable declaration", ListFields: []string{"name"}},
		tree.KindInfo{Kind: "const_spec", Display: "constant declaration", ListFields: []string{"name"}},
		tree.KindInfo{Kind: "parameter_declaration", Display: "parameter", ListFields: []string{"name"}},
		tree.KindInfo{Kind: "binary_expression", Priority: 3, Display: "binary operation"},
		tree.KindInfo{Kind: "identifier", Priority: 4, Display: "name"},
		tree.KindInfo{Kind: "int_literal", Priority: 4, Display: "number"},
		tree.KindInfo{Kind: "interpreted_string_literal", Priority: 4, Display: "string"},
	).
		Alias("File", "source_file").
		Alias("Package", "package_clause").
		Alias("Import", "import_declaration").
		Alias("Func", "function_declaration").
		Alias("ShortVar", "short_var_declaration").
		Alias("Assign", "assignment_statement").
		Alias("Return", "return_statement").
		Alias("If", "if_statement").
		Alias("For", "for_statement").
		Alias("Call", "call_expression").
		Alias("BinOp", "binary_expression").
		Alias("Ident", "identifier").
		Alias("Int", "int_literal").
		Alias("Str", "interpreted_string_literal")

	return Grammar{Name: "go", Language: golang.GetLanguage(), Catalogue: cat}
}

// Bash returns the shell grammar.
func Bash() Grammar {
	cat := tree.NewCatalogue("bash",
		tree.KindInfo{Kind: "program", Priority: 0},
		tree.KindInfo{Kind: "command", Priority: 1,
			ListFields: []string{"argument", "redirect"}},
		tree.KindInfo{Kind: "pipeline", Priority: 1},
		tree.KindInfo{Kind: "variable_assignment", Priority: 1, Display: "variable assignment"},
		tree.KindInfo{Kind: "if_statement", Priority: 1, Display: "if statement"},
		tree.KindInfo{Kind: "for_statement", Priority: 1, Display: "for loop",
			ListFields: []string{"value"}},
		tree.KindInfo{Kind: "function_definition", Priority: 1, Display: "function definition"},
		tree.KindInfo{Kind: "command_name", Priority: 2, Display: "command name"},
		tree.KindInfo{Kind: "word", Priority: 3},
		tree.KindInfo{Kind: "string", Priority: 3},
	).
		Alias("Program", "program").
		Alias("Command", "command").
		Alias("Pipeline", "pipeline").
		Alias("Assign", "variable_assignment").
		Alias("If", "if_statement").
		Alias("For", "for_statement").
		Alias("Function", "function_definition").
		Alias("CommandName", "command_name").
		Alias("Word", "word").
		Alias("Str", "string")

	return Grammar{Name: "bash", Language: bash.GetLanguage(), Catalogue: cat}
}

// SQL returns the SQL grammar.
func SQL() Grammar {
	cat := tree.NewCatalogue("sql",
		tree.KindInfo{Kind: "program", Priority: 0, Display: "script"},
		tree.KindInfo{Kind: "statement", Priority: 1},
		tree.KindInfo{Kind: "create_table", Priority: 2, Display: "create table statement"},
		tree.KindInfo{Kind: "create_view", Priority: 2, Display: "create view statement"},
		tree.KindInfo{Kind: "create_index", Priority: 2, Display: "create index statement"},
		tree.KindInfo{Kind: "select", Priority: 2, Display: "select clause"},
		tree.KindInfo{Kind: "from", Priority: 2, Display: "from clause"},
		tree.KindInfo{Kind: "where", Priority: 2, Display: "where clause"},
		tree.KindInfo{Kind: "column_definition", Priority: 3, Display: "column definition"},
		tree.KindInfo{Kind: "object_reference", Priority: 4, Display: "table reference"},
		tree.KindInfo{Kind: "field", Priority: 4},
		tree.KindInfo{Kind: "identifier", Priority: 5},
		tree.KindInfo{Kind: "literal", Priority: 5},
	).
		Alias("Script", "program").
		Alias("Statement", "statement").
		Alias("CreateTable", "create_table").
		Alias("CreateView", "create_view").
		Alias("CreateIndex", "create_index").
		Alias("Select", "select").
		Alias("From", "from").
		Alias("Where", "where").
		Alias("Column", "column_definition").
		Alias("Table", "object_reference").
		Alias("Field", "field").
		Alias("Identifier", "identifier").
		Alias("Literal", "literal")

	return Grammar{Name: "sql", Language: sql.GetLanguage(), Catalogue: cat}
}

var grammars = map[string]func() Grammar{
	"python": Python,
	"go":     Go,
	"bash":   Bash,
	"sql":    SQL,
}

// Lookup returns the grammar named name.
func Lookup(name string) (Grammar, error) {
	g, ok := grammars[name]
	if !ok {
		return Grammar{}, fmt.Errorf("%w: %q", ErrUnknownGrammar, name)
	}
	return g(), nil
}

// Names returns the supported grammar names, sorted.
func Names() []string {
	out := make([]string, 0, len(grammars))
	for name := range grammars {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
