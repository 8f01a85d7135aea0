package programs

import (
	"context"

	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/layout"
)

// OriginalityInfo records whether an image is original, keyed by image hash.
type OriginalityInfo struct {
	ImageHash   string
	Originality bool
}

var (
	originalityHashField = layout.String("image_hash", 68)
	originalityField     = layout.Bool("originality")
)

var originalitySchema = &bounded.KeyedSchema[OriginalityInfo]{
	Layout: bounded.KeyedLayout("OriginalityStore", "image_count", ImageCapacity, layout.NewRecord(
		originalityHashField,
		originalityField,
	)),
	Codec: originalityCodec{},
	Key:   func(o OriginalityInfo) string { return o.ImageHash },
}

type originalityCodec struct{}

func (originalityCodec) Encode(w *layout.Writer, o OriginalityInfo) error {
	if err := w.String(originalityHashField, o.ImageHash); err != nil {
		return err
	}
	return w.Bool(o.Originality)
}

func (originalityCodec) Decode(rd *layout.Reader) (OriginalityInfo, error) {
	var o OriginalityInfo
	var err error
	if o.ImageHash, err = rd.String(originalityHashField); err != nil {
		return o, err
	}
	o.Originality, err = rd.Bool()
	return o, err
}

// Object renders the record; it doubles as the OriginalityStored payload.
func (o OriginalityInfo) Object() ir.Object {
	return ir.Object{
		"image_hash":  ir.String(o.ImageHash),
		"originality": ir.Bool(o.Originality),
	}
}

// Originality is the image originality program.
type Originality struct{}

func (Originality) Name() string { return "originality" }

func (Originality) Layout() layout.Store { return originalitySchema.Layout }

func (Originality) Actions() []ir.ActionSig {
	return []ir.ActionSig{
		{
			Name: "store_originality",
			Kind: ir.KindAction,
			Args: []ir.NamedArg{
				{Name: "image_hash", Type: "string"},
				{Name: "originality", Type: "bool"},
			},
			Emits: "OriginalityStored",
		},
		{Name: "get_originality", Kind: ir.KindQuery, Args: []ir.NamedArg{{Name: "image_hash", Type: "string"}}},
		{Name: "stats", Kind: ir.KindQuery},
	}
}

// Init returns an empty originality store with image_count 0.
func (Originality) Init() ([]byte, error) {
	return bounded.NewKeyed(originalitySchema).Encode()
}

func (o Originality) Execute(ctx context.Context, data []byte, call Call) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	sig, err := lookupSig(o, call.Action, ir.KindAction, call.Args)
	if err != nil {
		return Outcome{}, err
	}

	var info OriginalityInfo
	if info.ImageHash, err = argString(call.Args, "image_hash"); err != nil {
		return Outcome{}, err
	}
	if info.Originality, err = argBool(call.Args, "originality"); err != nil {
		return Outcome{}, err
	}

	store, err := bounded.DecodeKeyed(originalitySchema, data)
	if err != nil {
		return Outcome{}, err
	}
	stored, _, err := store.Put(info)
	if err != nil {
		return Outcome{}, err
	}
	buf, err := encodeNew(originalitySchema.Layout.Size(), store.EncodeTo)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Data: buf, Event: sig.Emits, Payload: stored.Object()}, nil
}

func (o Originality) View(data []byte, query string, args ir.Object) (ir.Value, error) {
	if _, err := lookupSig(o, query, ir.KindQuery, args); err != nil {
		return nil, err
	}
	store, err := bounded.DecodeKeyed(originalitySchema, data)
	if err != nil {
		return nil, err
	}
	if query == "stats" {
		return statsValue(originalitySchema.Layout, store.Len(), ir.Object{
			"image_count": ir.Int(store.Len()),
		}), nil
	}

	hash, err := argString(args, "image_hash")
	if err != nil {
		return nil, err
	}
	info, err := store.Lookup(hash)
	if err != nil {
		return nil, err
	}
	return ir.Bool(info.Originality), nil
}
