// Package lang parses and evaluates LG (Language Generation) templates.
//
// An LG file is a list of named templates. Each template renders text or
// a structured value by choosing among variations, following IF/SWITCH
// branches, and evaluating embedded ${...} expressions. Expressions are
// delegated to expr-lang; template calls inside them are resolved by
// patching the expression tree.
//
// # Grammar
//
//	> a comment
//	[import](common.lg)
//	[import](cards.lg) as cards
//
//	# Greeting(name)
//	- Hello ${name}!
//	- Hi ${name}.
//
//	# TimeOfDay
//	- IF: ${hour < 12}
//	    - morning
//	- ELSEIF: ${hour < 18}
//	    - afternoon
//	- ELSE:
//	    - evening
//
//	# Weekday
//	- SWITCH: ${day}
//	- CASE: ${'sat'}
//	    - weekend
//	- DEFAULT:
//	    - workday
//
//	# Card(title)
//	[HeroCard
//	    title = ${title}
//	    buttons = Yes | No
//	    ${Defaults()}
//	]
//
// Multiline variations are enclosed in ``` fences. The escapes
// \\ \n \r \t \$ \{ \} \[ \] \- \# \| are recognized outside fences.
//
// # Collections
//
// [ParseFile], [ParseFiles] and [ParseText] build a [Templates]
// collection. Imports resolve relative to the importing file. An
// unaliased import makes the imported templates, and transitively those of
// its own unaliased imports, callable by their names; an aliased import
// makes them callable as alias.Name. Problems never abort a build: they
// are reported as [Diagnostic] values and confined to the template they
// occur in. When a name is defined twice in a file, both definitions are
// flagged and the last one is used.
//
// # Evaluation
//
// [Templates.Evaluate] produces one rendering; [Templates.Expand] lazily
// yields all of them. A template with parameters evaluates in a child of
// the top-level scope binding its arguments, so callees never see their
// caller's parameters. A parameterless template, a template referenced
// with @Name, and the top-level template evaluate in the caller's scope.
//
// Expressions support the expr-lang language and built-ins plus
// createArray, includes (contains), json, jsonStringify, exists, isEmpty,
// coalesce, add, toLower, toUpper, formatNumber, count, where, if,
// template and isTemplate. Division and modulo by zero fail with
// [ErrArithmetic].
package lang
