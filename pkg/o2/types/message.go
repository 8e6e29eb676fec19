package types

// TypeTag is a single O2 argument type code.
type TypeTag byte

const (
	TypeInt32 TypeTag = 'i'
	TypeInt64 TypeTag = 'h'
	TypeFloat32 TypeTag = 'f'
	TypeFloat64 TypeTag = 'd'
	TypeTime TypeTag = 't'
	TypeString TypeTag = 's'
	TypeSymbol TypeTag = 'S'
	TypeBlob TypeTag = 'b'
	TypeMidi TypeTag = 'm'
	TypeTrue TypeTag = 'T'
	TypeFalse TypeTag = 'F'
	TypeNil TypeTag = 'N'
	TypeInfinity TypeTag = 'I'
	TypeChar TypeTag = 'c'
	TypeBool TypeTag = 'B'
	TypeArrayOn TypeTag = '['
	TypeArrayOff TypeTag = ']'
	TypeVector TypeTag = 'v'
)

// numeric reports whether the tag denotes a coercible numeric/boolean type.
func (t TypeTag) numeric() bool {
	switch t {
	case TypeInt32, TypeInt64, TypeFloat32, TypeFloat64, TypeTrue, TypeFalse, TypeBool:
		return true
	default:
		return false
	}
}

// stringlike reports whether the tag is interchangeable with the other
// string-shaped tag (string <-> symbol).
func (t TypeTag) stringlike() bool {
	return t == TypeString || t == TypeSymbol
}

// Coercible reports whether a value tagged `from` can be read back as `to`
// per the dispatcher's coercion rules.
func (from TypeTag) Coercible(to TypeTag) bool {
	if from == to {
		return true
	}
	if from.numeric() && to.numeric() {
		return true
	}
	if from.stringlike() && to.stringlike() {
		return true
	}
	return false
}

// MessageFlags are the header bits from wire layout.
type MessageFlags uint32

const (
	FlagTCP MessageFlags = 1 << 0
	FlagTap MessageFlags = 1 << 1
)

// Header is the fixed portion of every O2 message.
type Header struct {
	Flags     MessageFlags
	Timestamp float64 // seconds since the reference epoch, or 0 for "now"
}

// Argument is one decoded/decodable payload value. Only one of the typed
// fields is meaningful, selected by Tag.
type Argument struct {
	Tag TypeTag
	Int32 int32
	Int64 int64
	Float float32
	Double float64
	Str string // String, Symbol
	Blob []byte
	Midi [4]byte
	Vector []Argument // array ('['.. ']') or vector ('v') elements
}

// Message is a single O2 message: header, destination address, type
// string, and decoded/encodable arguments. Encoding to and from
// the wire byte layout is the wire package's job; Message is the in-memory
// model handlers and the dispatcher operate on.
type Message struct {
	Header
	Address string // e.g. "/svc/a/b/c", or "#bundle"
	Types string // leading ',' followed by type codes; "" for a bundle
	Args []Argument

	// Bundle holds the embedded messages when Address == "#bundle".
	Bundle []Message

	// From identifies which peer originated the message. The decoder and
	// dispatcher neither set nor read it, so it is empty unless a caller
	// fills it in.
	From ProcessID
}

// IsBundle reports whether the message is a "#bundle" container.
func (m *Message) IsBundle() bool {
	return m.Address == "#bundle"
}

// HandlerFunc is the user callback signature, analogous to the C
// o2_method_handler function pointer.
type HandlerFunc func(msg *Message, types string, argv []Argument, userData interface{})

// HandlerFlags control how a Handler's declared type string is enforced.
type HandlerFlags uint32

const (
	// FlagCoerce: when the message's actual types differ from the
	// handler's declared type string, attempt coercion per TypeTag.Coercible
	// instead of dropping the message.
	FlagCoerce HandlerFlags = 1 << 0
	// FlagParseArgs: for a handler that accepts any types (TypeStringAny),
	// pass the message's arguments as argv. A handler with a declared type
	// string always gets argv built from its checked arguments.
	FlagParseArgs HandlerFlags = 1 << 1
	// FlagFullMatch marks a handler installed at a service-level path as
	// matching only the full path rather than acting as a prefix default.
	// The dispatcher does not consult this flag.
	FlagFullMatch HandlerFlags = 1 << 2
)

// TypeStringAny is the well-known type string meaning "accept any types".
const TypeStringAny = ""

// Handler is a single installed address handler.
type Handler struct {
	Address string
	TypeString string // TypeStringAny to accept any argument types
	Flags HandlerFlags
	Func HandlerFunc
	UserData interface{}
}

// ProviderKind distinguishes the four concrete Proxy variants.
type ProviderKind int

const (
	ProviderLocal ProviderKind = iota
	ProviderRemote
	ProviderOSC
	ProviderLiteBridge
)

func (k ProviderKind) String() string {
	switch k {
	case ProviderLocal:
		return "local"
	case ProviderRemote:
		return "remote"
	case ProviderOSC:
		return "osc"
	case ProviderLiteBridge:
		return "lite"
	default:
		return "unknown"
	}
}

// TapInfo names a tap attached to a tappee service.
type TapInfo struct {
	TapperService string
	TapperProcess ProcessID
}
