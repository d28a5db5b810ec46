package util

import (
	"errors"
	"fmt"

	"github.com/nvylang/nvyc/pkg/token"
)

type ErrorKind int

const (
	ErrUnknown ErrorKind = iota

	// Syntax
	ErrMissingSemicolon
	ErrUnexpectedToken
	ErrUnterminatedString
	ErrUnterminatedComment
	ErrInvalidNumber
	ErrInvalidOperator
	ErrExpectedIdentifier
	ErrExpectedExpression
	ErrExpectedType
	ErrExpectedParenOpen
	ErrExpectedParenClose
	ErrExpectedBraceOpen
	ErrExpectedBraceClose
	ErrUnexpectedEOF

	// Declarations and scope
	ErrRedeclaration
	ErrUndeclaredIdentifier
	ErrTypeMismatch
	ErrInvalidAssignmentTarget
	ErrWrongNumberOfArguments

	// Control flow
	ErrReturnOutsideFunction

	// Pointers
	ErrInvalidDereference
	ErrInvalidAddressOf
	ErrTypeDepthMismatch

	// Operators
	ErrInvalidOperatorUsage
	ErrDivisionByZero
	ErrInvalidCast
	ErrInsufficientOperands

	// Files
	ErrImport
)

var kindInfo = map[ErrorKind]struct{ name, desc string }{
	ErrUnknown:                 {"UNKNOWN_ERROR", "Unclassified or unknown error"},
	ErrMissingSemicolon:        {"MISSING_SEMICOLON", "Expected semicolon, but didn't find one"},
	ErrUnexpectedToken:         {"UNEXPECTED_TOKEN", "Unexpected or misplaced token"},
	ErrUnterminatedString:      {"UNTERMINATED_STRING", "String literal missing closing quote"},
	ErrUnterminatedComment:     {"UNTERMINATED_COMMENT", "Block comment not properly closed"},
	ErrInvalidNumber:           {"INVALID_NUMBER_LITERAL", "Malformed numeric constant"},
	ErrInvalidOperator:         {"INVALID_OPERATOR", "Unknown compound operator"},
	ErrExpectedIdentifier:      {"EXPECTED_IDENTIFIER", "Expected variable or function name"},
	ErrExpectedExpression:      {"EXPECTED_EXPRESSION", "Expected expression but found none"},
	ErrExpectedType:            {"EXPECTED_TYPE", "Missing or invalid type name"},
	ErrExpectedParenOpen:       {"EXPECTED_PAREN_OPEN", "Expected '('"},
	ErrExpectedParenClose:      {"EXPECTED_PAREN_CLOSE", "Expected ')'"},
	ErrExpectedBraceOpen:       {"EXPECTED_BRACE_OPEN", "Expected '{'"},
	ErrExpectedBraceClose:      {"EXPECTED_BRACE_CLOSE", "Expected '}'"},
	ErrUnexpectedEOF:           {"UNEXPECTED_EOF", "Unexpected end of file"},
	ErrRedeclaration:           {"REDECLARATION", "Variable or function redeclared"},
	ErrUndeclaredIdentifier:    {"UNDECLARED_IDENTIFIER", "Use of undeclared variable or function"},
	ErrTypeMismatch:            {"TYPE_MISMATCH", "Type mismatch in assignment or expression"},
	ErrInvalidAssignmentTarget: {"INVALID_ASSIGNMENT_TARGET", "Cannot assign to this expression"},
	ErrWrongNumberOfArguments:  {"WRONG_NUMBER_OF_ARGUMENTS", "Incorrect number of arguments in call"},
	ErrReturnOutsideFunction:   {"RETURN_OUTSIDE_FUNCTION", "Return used outside of function"},
	ErrInvalidDereference:      {"INVALID_DEREFERENCE", "Attempted to dereference non-pointer"},
	ErrInvalidAddressOf:        {"INVALID_ADDRESS_OF", "Invalid use of address-of operator"},
	ErrTypeDepthMismatch:       {"TYPE_DEPTH_MISMATCH", "Pointer/reference depth mismatch"},
	ErrInvalidOperatorUsage:    {"INVALID_OPERATOR_USAGE", "Invalid operator usage for operand types"},
	ErrDivisionByZero:          {"DIVISION_BY_ZERO", "Division by zero detected"},
	ErrInvalidCast:             {"INVALID_CAST", "Invalid or unsafe type cast"},
	ErrInsufficientOperands:    {"INSUFFICIENT_OPERANDS", "Operator is missing an operand"},
	ErrImport:                  {"IMPORT_ERROR", "Imported file could not be read"},
}

func (k ErrorKind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return kindInfo[ErrUnknown].name
}

// Description is the fixed human-readable meaning of the kind.
func (k ErrorKind) Description() string {
	if info, ok := kindInfo[k]; ok {
		return info.desc
	}
	return kindInfo[ErrUnknown].desc
}

// Diagnostic is an error anchored at a source token.
type Diagnostic struct {
	Kind     ErrorKind
	Msg      string
	Tok      token.Token
	Fragment string // reconstructed source, when the token alone is not enough
}

func (d *Diagnostic) Error() string {
	msg := d.Msg
	if msg == "" {
		msg = d.Kind.Description()
	}
	if d.Tok.Line > 0 {
		return fmt.Sprintf("%d:%d: %s: %s", d.Tok.Line, d.Tok.Column, d.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", d.Kind, msg)
}

// Errorf builds a Diagnostic of the given kind located at tok.
func Errorf(kind ErrorKind, tok token.Token, format string, args ...interface{}) error {
	return &Diagnostic{Kind: kind, Msg: fmt.Sprintf(format, args...), Tok: tok}
}

// WithFragment attaches reconstructed source text to a Diagnostic.
func WithFragment(err error, fragment string) error {
	var d *Diagnostic
	if errors.As(err, &d) {
		cp := *d
		cp.Fragment = fragment
		return &cp
	}
	return err
}

// KindOf returns the kind of a Diagnostic, or ErrUnknown for other errors.
func KindOf(err error) ErrorKind {
	var d *Diagnostic
	if errors.As(err, &d) {
		return d.Kind
	}
	return ErrUnknown
}
