package cfg

// parser drives the recursive-descent object grammar on top of the lexer,
// accumulating entries into one flat, append-only slice threaded by
// sibling offsets (see Entry.Next).
type parser struct {
	lex     *lexer
	entries []Entry
}

func (p *parser) newEntry() int {
	p.entries = append(p.entries, Entry{})
	return len(p.entries) - 1
}

const maxIndentDepth = 256

// parseObject parses exactly one key (scalar or object) at the given
// indentation level, returning the number of entries it produced (itself
// plus every descendant). When the next line turns out to be indented less
// than lvl, no entry is produced; dedentLevel reports the indentation that
// was found and isDedent is true, leaving the line unconsumed for the
// caller (or its caller, recursively) to reparse at the correct level —
// this mirrors the reference parser's negative-return dedent signal.
func (p *parser) parseObject(lvl int) (total int, dedentLevel int, isDedent bool, err error) {
	if lvl > maxIndentDepth {
		return 0, 0, false, p.lex.raise(p.lex.pos, "indentation overflow (>256)")
	}

	tok, err := p.lex.next()
	if err != nil {
		return 0, 0, false, err
	}

	if tok.typ == tokEOF {
		// EOF always ends every open scope, regardless of lvl; -1 is a
		// sentinel dedent level that can never equal a real (>=0) lvl, so
		// finishObject never mistakes "file ended" for "a sibling follows".
		p.lex.unfetch(tok)
		p.lex.preserveLine = false
		return 0, -1, true, nil
	}

	indent := 0
	if tok.typ == tokIndent {
		indent = tok.indent
	}

	if indent != lvl {
		if indent > lvl {
			return 0, 0, false, p.lex.raise(tok.pos, "invalid indentation")
		}
		p.lex.unfetch(tok)
		p.lex.preserveLine = false
		return 0, indent, true, nil
	}

	if tok.typ != tokIndent {
		p.lex.unfetch(tok)
	}

	p.lex.preserveLine = true

	keyTok, err := p.lex.next()
	if err != nil {
		return 0, 0, false, err
	}
	if keyTok.typ != tokIdent {
		return 0, 0, false, p.lex.raise(keyTok.pos, "expected identifier")
	}

	entIdx := p.newEntry()
	p.entries[entIdx].Key = keyTok.ident
	p.entries[entIdx].Kind = entryValue

	sepTok, err := p.lex.next()
	if err != nil {
		return 0, 0, false, err
	}
	if sepTok.typ != tokColon && sepTok.typ != tokEqu {
		return 0, 0, false, p.lex.raise(sepTok.pos, "expected ':' or '='")
	}

	if sepTok.typ == tokEqu {
		return p.finishScalar(entIdx)
	}
	return p.finishObject(entIdx, lvl)
}

func (p *parser) finishScalar(entIdx int) (int, int, bool, error) {
	valTok, err := p.lex.next()
	if err != nil {
		return 0, 0, false, err
	}

	p.lex.preserveLine = false
	if err := p.lex.skipLine(); err != nil {
		return 0, 0, false, err
	}

	switch valTok.typ {
	case tokIdent:
		p.entries[entIdx].Value = Value{Type: ValueString, String: valTok.ident}
	case tokInt:
		if valTok.isSigned {
			p.entries[entIdx].Value = Value{Type: ValueSigned, Signed: valTok.asI64}
		} else {
			p.entries[entIdx].Value = Value{Type: ValueUnsigned, Unsigned: valTok.asU64}
		}
	case tokBool:
		p.entries[entIdx].Value = Value{Type: ValueBool, Bool: valTok.isTrue}
	case tokNull:
		p.entries[entIdx].Value = Value{Type: ValueNone}
	default:
		return 0, 0, false, p.lex.raise(valTok.pos, "expected value")
	}

	p.entries[entIdx].Next = 1
	return 1, 0, false, nil
}

func (p *parser) finishObject(entIdx int, lvl int) (int, int, bool, error) {
	p.entries[entIdx].Value = Value{Type: ValueObject, ObjectOff: entIdx}

	p.lex.preserveLine = false
	if err := p.lex.skipLine(); err != nil {
		return 0, 0, false, err
	}

	total := 1
	dedentLevel := 0

	for {
		children, childDedent, isDedent, err := p.parseObject(lvl + 1)
		if err != nil {
			return 0, 0, false, err
		}
		if isDedent {
			dedentLevel = childDedent
			break
		}
		total += children
	}

	if total == 1 {
		return 0, 0, false, p.lex.raise(p.lex.pos, "empty objects are not allowed")
	}

	if dedentLevel >= 0 && dedentLevel == lvl {
		p.entries[entIdx].Next = total
	} else {
		p.entries[entIdx].Next = 0
	}
	p.entries[len(p.entries)-1].Next = 0

	return total, 0, false, nil
}

// Config is a fully parsed hyper.cfg tree: the flattened entry array plus
// the loadable-entry chain root.
type Config struct {
	entries       []Entry
	firstLoadable int // -1 if none
	lastLoadable  int
}

// Parse parses the whole of src, returning a *ParseError on any grammar
// violation (never a generic error).
func Parse(src string) (*Config, error) {
	p := &parser{lex: newLexer(src)}
	firstLoadable, lastLoadable := -1, -1

	for {
		tok, err := p.lex.next()
		if err != nil {
			return nil, err
		}

		switch tok.typ {
		case tokEntry:
			if lastLoadable != -1 {
				if len(p.entries) > 0 && p.entries[len(p.entries)-1].Kind == entryLoadableEntry {
					return nil, p.lex.raise(tok.pos, "empty loadable entry isn't allowed")
				}
				p.entries[len(p.entries)-1].Next = 0
				p.entries[lastLoadable].Next = len(p.entries) - lastLoadable
			} else {
				firstLoadable = len(p.entries)
			}

			idx := p.newEntry()
			p.entries[idx].Key = tok.ident
			p.entries[idx].Kind = entryLoadableEntry
			lastLoadable = idx

			p.lex.preserveLine = false
			if err := p.lex.skipLine(); err != nil {
				return nil, err
			}

		case tokEOF:
			if lastLoadable != -1 {
				if p.entries[len(p.entries)-1].Kind == entryLoadableEntry {
					return nil, p.lex.raise(tok.pos, "empty loadable entry isn't allowed")
				}
				p.entries[len(p.entries)-1].Next = 0
				p.entries[lastLoadable].Next = 0
			}
			if len(p.entries) > 0 {
				p.entries[len(p.entries)-1].Next = 0
			}
			return &Config{entries: p.entries, firstLoadable: firstLoadable, lastLoadable: lastLoadable}, nil

		default:
			p.lex.unfetch(tok)
			if _, _, _, err := p.parseObject(0); err != nil {
				return nil, err
			}
		}
	}
}
