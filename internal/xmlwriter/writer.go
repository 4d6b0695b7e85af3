// =============================================================================
// chms-migrate - XML Writer Module
// =============================================================================
//
// Streams canonical records into a single interchange document. Records are
// written as they arrive, so the writer never holds more than one record.
//
// XML STRUCTURE:
//
//   <Interchange generator="chms-migrate">    <!-- Root element -->
//     <Campus n="1">                          <!-- One element per record -->
//       <Id>1183541937</Id>                   <!-- n is the global sequence -->
//       <Name>North Campus</Name>
//     </Campus>
//     <Person n="2">
//       <Id>100</Id>
//       <Addresses>
//         <Address>...</Address>
//       </Addresses>
//     </Person>
//     <FinancialTransaction n="3">
//       <Id>1</Id>
//       <Details>
//         <Detail>...</Detail>             <!-- Details stay nested -->
//       </Details>
//     </FinancialTransaction>
//   </Interchange>
//
// The element name of each record is its Kind. Field elements come from the
// xml tags of the record types.
//
// =============================================================================

package xmlwriter

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// FileName is the document name inside a package directory.
const FileName = "interchange.xml"

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// GenerateOptions contains options for XML generation.
type GenerateOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	// Default: true
	IncludeXMLDeclaration bool

	// RootElement is the document element.
	// Default: "Interchange"
	RootElement string

	// RootAttributes are additional attributes for the root element.
	RootAttributes map[string]string

	// IndexAttribute carries the record's position in the document. Empty
	// disables it.
	// Default: "n"
	IndexAttribute string
}

// DefaultGenerateOptions returns the default generation options.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		RootElement:           "Interchange",
		RootAttributes:        map[string]string{"generator": "chms-migrate"},
		IndexAttribute:        "n",
	}
}

// =============================================================================
// STREAMING WRITER
// =============================================================================

// Writer streams records into one XML document. It implements types.Writer.
// Close must be called to end the document.
type Writer struct {
	out     *bufio.Writer
	closer  io.Closer
	enc     *xml.Encoder
	options GenerateOptions
	root    xml.StartElement
	started bool
	closed  bool
	count   int
}

// NewWriter returns a writer over w. If w is an io.Closer it is closed by
// Close.
func NewWriter(w io.Writer, options GenerateOptions) *Writer {
	if options.RootElement == "" {
		options.RootElement = "Interchange"
	}
	out := bufio.NewWriter(w)
	enc := xml.NewEncoder(out)
	enc.Indent("", options.Indent)

	root := xml.StartElement{Name: xml.Name{Local: options.RootElement}}
	for _, key := range slices.Sorted(maps.Keys(options.RootAttributes)) {
		root.Attr = append(root.Attr, xml.Attr{Name: xml.Name{Local: key}, Value: options.RootAttributes[key]})
	}

	wr := &Writer{out: out, enc: enc, options: options, root: root}
	if c, ok := w.(io.Closer); ok {
		wr.closer = c
	}
	return wr
}

// start writes the declaration and opens the root element.
func (w *Writer) start() error {
	if w.started {
		return nil
	}
	w.started = true
	if w.options.IncludeXMLDeclaration {
		if _, err := w.out.WriteString(xml.Header); err != nil {
			return err
		}
	}
	return w.enc.EncodeToken(w.root)
}

// Write encodes one record as an element named after its kind.
func (w *Writer) Write(r types.Record) error {
	if w.closed {
		return fmt.Errorf("xml writer: write after close")
	}
	if err := w.start(); err != nil {
		return fmt.Errorf("failed to start XML document: %w", err)
	}

	w.count++
	el := xml.StartElement{Name: xml.Name{Local: string(r.Kind())}}
	if w.options.IndexAttribute != "" {
		el.Attr = []xml.Attr{{Name: xml.Name{Local: w.options.IndexAttribute}, Value: strconv.Itoa(w.count)}}
	}
	if err := w.enc.EncodeElement(r, el); err != nil {
		return fmt.Errorf("failed to marshal %s %d: %w", r.Kind(), r.RecordID(), err)
	}
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Close ends the document and flushes it. An empty document still gets its
// root element.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.start(); err != nil {
		return fmt.Errorf("failed to start XML document: %w", err)
	}
	if err := w.enc.EncodeToken(w.root.End()); err != nil {
		return fmt.Errorf("failed to end XML document: %w", err)
	}
	if err := w.enc.Flush(); err != nil {
		return err
	}
	if _, err := w.out.WriteString("\n"); err != nil {
		return err
	}
	if err := w.out.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// =============================================================================
// XSD GENERATION
// =============================================================================

// GenerateXSD describes the interchange document: one global element per
// record kind, with the fields of its type.
//
// minOccurs is 0 for omitempty fields and slices; nested slices are typed
// loosely as xs:anyType.
func GenerateXSD(options GenerateOptions) ([]byte, error) {
	if options.RootElement == "" {
		options.RootElement = "Interchange"
	}
	var buffer bytes.Buffer

	buffer.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
`)
	fmt.Fprintf(&buffer, `  <xs:element name="%s">
    <xs:complexType>
      <xs:choice minOccurs="0" maxOccurs="unbounded">
`, options.RootElement)
	for _, kind := range types.Kinds() {
		if _, ok := samples[kind]; ok {
			fmt.Fprintf(&buffer, "        <xs:element ref=\"%s\"/>\n", kind)
		}
	}
	buffer.WriteString(`      </xs:choice>
    </xs:complexType>
  </xs:element>
`)

	for _, kind := range types.Kinds() {
		sample, ok := samples[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(&buffer, `
  <xs:element name="%s">
    <xs:complexType>
      <xs:sequence>
`, kind)
		t := reflect.TypeOf(sample).Elem()
		for i := 0; i < t.NumField(); i++ {
			writeXSDElement(&buffer, t.Field(i), 4)
		}
		buffer.WriteString("      </xs:sequence>\n")
		if options.IndexAttribute != "" {
			fmt.Fprintf(&buffer, "      <xs:attribute name=\"%s\" type=\"xs:positiveInteger\"/>\n", options.IndexAttribute)
		}
		buffer.WriteString(`    </xs:complexType>
  </xs:element>
`)
	}

	buffer.WriteString("\n</xs:schema>\n")
	return buffer.Bytes(), nil
}

// samples holds one value per top-level kind. Details are nested in their
// transaction and have no element of their own.
var samples = map[types.Kind]types.Record{
	types.KindCampus:               &types.Campus{},
	types.KindPersonAttribute:      &types.PersonAttribute{},
	types.KindPerson:               &types.Person{},
	types.KindBusiness:             &types.Business{},
	types.KindPersonNote:           &types.PersonNote{},
	types.KindFinancialAccount:     &types.FinancialAccount{},
	types.KindFinancialPledge:      &types.FinancialPledge{},
	types.KindFinancialBatch:       &types.FinancialBatch{},
	types.KindFinancialTransaction: &types.FinancialTransaction{},
	types.KindGroupType:            &types.GroupType{},
	types.KindGroup:                &types.Group{},
	types.KindGroupMember:          &types.GroupMember{},
	types.KindAttendance:           &types.Attendance{},
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

// writeXSDElement writes the XSD element for one struct field.
func writeXSDElement(buffer *bytes.Buffer, field reflect.StructField, indentLevel int) {
	tag := field.Tag.Get("xml")
	if tag == "-" {
		return
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}
	// Wrapped slices such as Details>Detail are declared by their wrapper.
	name, _, _ = strings.Cut(name, ">")

	minOccurs := "1"
	ft := field.Type
	if strings.Contains(opts, "omitempty") || ft.Kind() == reflect.Pointer || ft.Kind() == reflect.Slice {
		minOccurs = "0"
	}

	indent := strings.Repeat("  ", indentLevel)
	fmt.Fprintf(buffer, "%s<xs:element name=\"%s\" type=\"%s\" minOccurs=\"%s\"/>\n",
		indent, name, getXSDType(ft), minOccurs)
}

// getXSDType maps Go field types to XSD types.
func getXSDType(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch {
	case t == timeType:
		return "xs:dateTime"
	case t == decimalType:
		return "xs:decimal"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "xs:integer"
	case reflect.Bool:
		return "xs:boolean"
	case reflect.String:
		return "xs:string"
	default:
		return "xs:anyType"
	}
}
