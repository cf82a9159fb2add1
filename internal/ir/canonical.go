package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical encoding of a procedure used
// for content-addressed identity.
//
// Properties:
//  1. Deterministic: field order is fixed, no map iteration anywhere.
//  2. Identifiers are NFC normalised, so visually identical procedure
//     and variable names hash identically regardless of the source
//     encoding the front end handed us.
//  3. No HTML escaping (< > & are NOT escaped).
func MarshalCanonical(p *Procedure) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	if err := writeCanonicalString(&buf, p.Name); err != nil {
		return nil, err
	}
	buf.WriteString(`,"params":[`)
	for i, param := range p.Params {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(&buf, param); err != nil {
			return nil, err
		}
	}
	buf.WriteString(`],"body":`)
	if err := writeCanonicalBlock(&buf, p.Body); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeCanonicalBlock(buf *bytes.Buffer, stmts []Statement) error {
	buf.WriteByte('[')
	for i, s := range stmts {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalStmt(buf, s); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalStmt(buf *bytes.Buffer, s Statement) error {
	switch st := s.(type) {
	case Assign:
		buf.WriteString(`{"assign":{"target":`)
		if err := writeCanonicalString(buf, st.Target); err != nil {
			return err
		}
		fmt.Fprintf(buf, `,"op":%q,"rhs":`, string(st.Op))
		if err := writeCanonicalExpr(buf, st.Rhs); err != nil {
			return err
		}
		buf.WriteString("}}")
	case If:
		buf.WriteString(`{"if":{"guard":`)
		if err := writeCanonicalExpr(buf, st.Guard); err != nil {
			return err
		}
		buf.WriteString(`,"then":`)
		if err := writeCanonicalBlock(buf, st.Then); err != nil {
			return err
		}
		buf.WriteString(`,"else":`)
		if err := writeCanonicalBlock(buf, st.Else); err != nil {
			return err
		}
		buf.WriteString(`,"assert":`)
		if err := writeCanonicalExpr(buf, st.Assert); err != nil {
			return err
		}
		buf.WriteString("}}")
	case Loop:
		buf.WriteString(`{"loop":{"from":`)
		if err := writeCanonicalExpr(buf, st.From); err != nil {
			return err
		}
		buf.WriteString(`,"body":`)
		if err := writeCanonicalBlock(buf, st.Body); err != nil {
			return err
		}
		buf.WriteString(`,"until":`)
		if err := writeCanonicalExpr(buf, st.Until); err != nil {
			return err
		}
		buf.WriteString("}}")
	case Swap:
		buf.WriteString(`{"swap":{"a":`)
		if err := writeCanonicalString(buf, st.A); err != nil {
			return err
		}
		buf.WriteString(`,"b":`)
		if err := writeCanonicalString(buf, st.B); err != nil {
			return err
		}
		buf.WriteString("}}")
	case Call:
		buf.WriteString(`{"call":{"callee":`)
		if err := writeCanonicalString(buf, st.Callee); err != nil {
			return err
		}
		buf.WriteString(`,"args":[`)
		for i, arg := range st.Args {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, arg); err != nil {
				return err
			}
		}
		buf.WriteString("]}}")
	case Local:
		buf.WriteString(`{"local":{"name":`)
		if err := writeCanonicalString(buf, st.Name); err != nil {
			return err
		}
		buf.WriteString(`,"init":`)
		if err := writeCanonicalExpr(buf, st.Init); err != nil {
			return err
		}
		buf.WriteString("}}")
	case Delocal:
		buf.WriteString(`{"delocal":{"name":`)
		if err := writeCanonicalString(buf, st.Name); err != nil {
			return err
		}
		buf.WriteString(`,"value":`)
		if err := writeCanonicalExpr(buf, st.Value); err != nil {
			return err
		}
		buf.WriteString("}}")
	default:
		return fmt.Errorf("unknown statement type: %T", s)
	}
	return nil
}

func writeCanonicalExpr(buf *bytes.Buffer, e Expr) error {
	switch x := e.(type) {
	case Lit:
		fmt.Fprintf(buf, `{"lit":%d}`, x.Value)
	case Var:
		buf.WriteString(`{"var":`)
		if err := writeCanonicalString(buf, x.Name); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Binary:
		fmt.Fprintf(buf, `{"bin":{"op":%q,"left":`, string(x.Op))
		if err := writeCanonicalExpr(buf, x.Left); err != nil {
			return err
		}
		buf.WriteString(`,"right":`)
		if err := writeCanonicalExpr(buf, x.Right); err != nil {
			return err
		}
		buf.WriteString("}}")
	case Unary:
		fmt.Fprintf(buf, `{"un":{"op":%q,"operand":`, string(x.Op))
		if err := writeCanonicalExpr(buf, x.Operand); err != nil {
			return err
		}
		buf.WriteString("}}")
	default:
		return fmt.Errorf("unknown expression type: %T", e)
	}
	return nil
}

// writeCanonicalString writes a JSON string with NFC-normalised content
// and without HTML escaping.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalised := norm.NFC.String(s)

	var inner bytes.Buffer
	enc := json.NewEncoder(&inner)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalised); err != nil {
		return fmt.Errorf("encode string %q: %w", s, err)
	}
	// Encoder appends a newline; trim it.
	buf.Write(bytes.TrimRight(inner.Bytes(), "\n"))
	return nil
}
