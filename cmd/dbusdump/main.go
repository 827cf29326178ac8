// Command dbusdump decodes a stream of raw desktop-bus messages and
// prints their header fields and body contents.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/kr/pretty"

	"github.com/mtsonder/dbuswire"
)

var globalArgs struct {
	File string `flag:"file,Read messages from this file instead of stdin"`
}

func main() {
	root := &command.C{
		Name:     "dbusdump",
		Usage:    "dbusdump [command]",
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Commands: []*command.C{
			{
				Name:  "dump",
				Usage: "dump",
				Help:  "Decode every message in the input and print its header and body.",
				Run:   command.Adapt(runDump),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	env := root.NewEnv(nil)
	command.RunOrFail(env, os.Args[1:])
}

func runDump(env *command.Env) error {
	data, err := readInput(globalArgs.File)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	stream := dbus.NewMessageStream(data)
	n := 0
	for {
		msg, ok, err := stream.Next()
		if err != nil {
			return fmt.Errorf("decoding message %d: %w", n, err)
		}
		if !ok {
			break
		}
		if err := dumpMessage(msg); err != nil {
			return fmt.Errorf("message %d: %w", n, err)
		}
		n++
	}
	fmt.Printf("%d message(s)\n", n)
	return nil
}

func dumpMessage(msg dbus.Message) error {
	var out indenter
	h := msg.Header
	out.f("message type=%s serial=%d flags=%s", messageTypeName(h.Type), h.Serial, flagsString(h.Flags))
	out.indent(1)
	if h.Fields.Path != "" {
		out.f("path:        %s", h.Fields.Path)
	}
	if h.Fields.Interface != "" {
		out.f("interface:   %s", h.Fields.Interface)
	}
	if h.Fields.Member != "" {
		out.f("member:      %s", h.Fields.Member)
	}
	if h.Fields.ErrorName != "" {
		out.f("error name:  %s", h.Fields.ErrorName)
	}
	if h.Fields.ReplySerial != 0 {
		out.f("reply to:    %d", h.Fields.ReplySerial)
	}
	if h.Fields.Destination != "" {
		out.f("destination: %s", h.Fields.Destination)
	}
	if h.Fields.Sender != "" {
		out.f("sender:      %s", h.Fields.Sender)
	}
	if h.Fields.Signature != "" {
		out.f("signature:   %s", h.Fields.Signature)
	}
	out.indent(0)

	if h.Fields.Signature == "" {
		return nil
	}
	out.f("body:")
	return dumpBody(&out, 1, string(h.Fields.Signature), msg.Body)
}

func messageTypeName(t dbus.MessageType) string {
	switch t {
	case dbus.MethodCall:
		return "method_call"
	case dbus.MethodReturn:
		return "method_return"
	case dbus.MessageError:
		return "error"
	case dbus.Signal:
		return "signal"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

func flagsString(f dbus.Flags) string {
	var parts []string
	if f.NoReplyExpected() {
		parts = append(parts, "no_reply_expected")
	}
	if f.NoAutoStart() {
		parts = append(parts, "no_auto_start")
	}
	if f.AllowInteractiveAuthorization() {
		parts = append(parts, "allow_interactive_authorization")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// dumpBody walks every token of sig/body and prints it, recursing
// into arrays and tracking struct/dict-entry/variant nesting for
// indentation. A message body signature is a sequence of complete
// types sharing one flat byte stream, so a single TokenIter drains
// the whole thing: each top-level Next() call yields one value, and
// the loop runs until the signature is exhausted.
func dumpBody(out *indenter, indent int, sig string, body []byte) error {
	it := dbus.NewTokenIter(sig, body)
	return dumpTokens(out, indent, it)
}

func dumpTokens(out *indenter, indent int, it *dbus.TokenIter) error {
	for {
		tok, err, ok := it.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		out.indent(indent)
		switch tok.Kind {
		case dbus.KindStructOpen:
			out.f("struct {")
			indent++
		case dbus.KindStructClose:
			indent--
			out.indent(indent)
			out.f("}")
		case dbus.KindEntryOpen:
			out.f("entry {")
			indent++
		case dbus.KindEntryClose:
			indent--
			out.indent(indent)
			out.f("}")
		case dbus.KindVariant:
			out.f("variant {")
			indent++
		case dbus.KindVariantClose:
			indent--
			out.indent(indent)
			out.f("}")
		case dbus.KindArray:
			elemSig := string(tok.ArraySignature)
			out.f("array<%s> (%d bytes) {", elemSig, len(tok.ArrayData))
			if err := dumpArrayElements(out, indent+1, elemSig, tok.ArrayData); err != nil {
				return err
			}
			out.indent(indent)
			out.f("}")
		default:
			out.f("%s", formatAtom(tok))
		}
	}
}

// dumpArrayElements decodes data as a sequence of back-to-back values
// of elemSig, each consuming as many bytes as its own TokenIter
// reports having read. A fresh reader per element is safe here for
// the same reason [dbus.MessageStream] resets one per message: the
// array's element payload always starts elemAlign-aligned, and every
// alignment used while decoding one element divides elemAlign, so
// computing it relative to the element's own start agrees with
// computing it relative to the array's start.
func dumpArrayElements(out *indenter, indent int, elemSig string, data []byte) error {
	for len(data) > 0 {
		it := dbus.NewTokenIter(elemSig, data)
		if err := dumpTokens(out, indent, it); err != nil {
			return err
		}
		consumed := it.Reader().Position()
		if consumed == 0 {
			return fmt.Errorf("array element of signature %q made no progress", elemSig)
		}
		data = data[consumed:]
	}
	return nil
}

// formatAtom names an atom token's kind and pretty-prints its decoded
// Go value, the same way the original CLI this one is modeled on
// prints a decoded signal body: with kr/pretty's %# v formatter rather
// than a type-by-type Sprintf.
func formatAtom(tok dbus.Token) string {
	name, v, ok := atomValue(tok)
	if !ok {
		return fmt.Sprintf("token(kind=%q)", byte(tok.Kind))
	}
	return fmt.Sprintf("%s %# v", name, pretty.Formatter(v))
}

func atomValue(tok dbus.Token) (name string, value any, ok bool) {
	switch tok.Kind {
	case dbus.KindByte:
		return "byte", tok.Byte, true
	case dbus.KindBool:
		return "bool", tok.Bool, true
	case dbus.KindInt16:
		return "int16", tok.Int16, true
	case dbus.KindUint16:
		return "uint16", tok.Uint16, true
	case dbus.KindInt32:
		return "int32", tok.Int32, true
	case dbus.KindUint32:
		return "uint32", tok.Uint32, true
	case dbus.KindInt64:
		return "int64", tok.Int64, true
	case dbus.KindUint64:
		return "uint64", tok.Uint64, true
	case dbus.KindFloat64:
		return "float64", tok.Float64, true
	case dbus.KindString:
		return "string", tok.String, true
	case dbus.KindObjectPath:
		return "object_path", tok.ObjectPath, true
	case dbus.KindSignature:
		return "signature", tok.Signature, true
	default:
		return "", nil, false
	}
}
