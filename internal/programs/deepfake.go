package programs

import (
	"context"
	"fmt"

	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/layout"
)

// ImageCapacity is the maximum number of distinct image hashes a keyed
// image store holds.
const ImageCapacity = 1000

// Deepfake classification values.
const (
	DeepfakeMin uint8 = 1
	DeepfakeMax uint8 = 3
)

// ImageInfo is one deepfake classification, keyed by image hash.
type ImageInfo struct {
	ImageHash     string
	DeepfakeValue uint8
	Timestamp     uint64
}

var (
	imageHashField     = layout.String("image_hash", 68)
	deepfakeValueField = layout.U8("deepfake_value")
	imageTimeField     = layout.U64("timestamp")
)

var imageSchema = &bounded.KeyedSchema[ImageInfo]{
	Layout: bounded.KeyedLayout("ImageStore", "image_count", ImageCapacity, layout.NewRecord(
		imageHashField,
		deepfakeValueField,
		imageTimeField,
	)),
	Codec: imageCodec{},
	Key:   func(i ImageInfo) string { return i.ImageHash },
	Validate: func(i ImageInfo) error {
		if i.DeepfakeValue < DeepfakeMin || i.DeepfakeValue > DeepfakeMax {
			return bounded.NewInvalidValue("deepfake_value", fmt.Sprintf("%d is not one of 1, 2, 3", i.DeepfakeValue))
		}
		return nil
	},
}

type imageCodec struct{}

func (imageCodec) Encode(w *layout.Writer, i ImageInfo) error {
	if err := w.String(imageHashField, i.ImageHash); err != nil {
		return err
	}
	if err := w.U8(i.DeepfakeValue); err != nil {
		return err
	}
	return w.U64(i.Timestamp)
}

func (imageCodec) Decode(rd *layout.Reader) (ImageInfo, error) {
	var i ImageInfo
	var err error
	if i.ImageHash, err = rd.String(imageHashField); err != nil {
		return i, err
	}
	if i.DeepfakeValue, err = rd.U8(); err != nil {
		return i, err
	}
	i.Timestamp, err = rd.U64()
	return i, err
}

// Object renders the record; it doubles as the ImageAdded payload.
func (i ImageInfo) Object() ir.Object {
	return ir.Object{
		"image_hash":     ir.String(i.ImageHash),
		"deepfake_value": ir.Int(int64(i.DeepfakeValue)),
		"timestamp":      ir.Int(int64(i.Timestamp)),
	}
}

// Deepfake is the deepfake classification program.
type Deepfake struct{}

func (Deepfake) Name() string { return "deepfake" }

func (Deepfake) Layout() layout.Store { return imageSchema.Layout }

func (Deepfake) Actions() []ir.ActionSig {
	hashArg := []ir.NamedArg{{Name: "image_hash", Type: "string"}}
	return []ir.ActionSig{
		{
			Name: "store_image",
			Kind: ir.KindAction,
			Args: []ir.NamedArg{
				{Name: "image_hash", Type: "string"},
				{Name: "deepfake_value", Type: "int"},
			},
			Emits: "ImageAdded",
		},
		{Name: "get_deepfake_value", Kind: ir.KindQuery, Args: hashArg},
		{Name: "get_image_timestamp", Kind: ir.KindQuery, Args: hashArg},
		{Name: "get_image", Kind: ir.KindQuery, Args: hashArg},
		{Name: "stats", Kind: ir.KindQuery},
	}
}

// Init returns an empty image store with image_count 0.
func (Deepfake) Init() ([]byte, error) {
	return bounded.NewKeyed(imageSchema).Encode()
}

func (d Deepfake) Execute(ctx context.Context, data []byte, call Call) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	sig, err := lookupSig(d, call.Action, ir.KindAction, call.Args)
	if err != nil {
		return Outcome{}, err
	}

	hash, err := argString(call.Args, "image_hash")
	if err != nil {
		return Outcome{}, err
	}
	// Out-of-u8 values fail like any other value outside {1, 2, 3}.
	value, err := argInt(call.Args, "deepfake_value", 0, 255)
	if err != nil {
		return Outcome{}, bounded.NewInvalidValue("deepfake_value", fmt.Sprintf("%v is not one of 1, 2, 3", call.Args["deepfake_value"]))
	}

	store, err := bounded.DecodeKeyed(imageSchema, data)
	if err != nil {
		return Outcome{}, err
	}
	stored, _, err := store.Put(ImageInfo{
		ImageHash:     hash,
		DeepfakeValue: uint8(value),
		Timestamp:     uint64(call.Timestamp),
	})
	if err != nil {
		return Outcome{}, err
	}
	buf, err := encodeNew(imageSchema.Layout.Size(), store.EncodeTo)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Data: buf, Event: sig.Emits, Payload: stored.Object()}, nil
}

func (d Deepfake) View(data []byte, query string, args ir.Object) (ir.Value, error) {
	if _, err := lookupSig(d, query, ir.KindQuery, args); err != nil {
		return nil, err
	}
	store, err := bounded.DecodeKeyed(imageSchema, data)
	if err != nil {
		return nil, err
	}
	if query == "stats" {
		return statsValue(imageSchema.Layout, store.Len(), ir.Object{
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
	switch query {
	case "get_deepfake_value":
		return ir.Int(int64(info.DeepfakeValue)), nil
	case "get_image_timestamp":
		return ir.Int(int64(info.Timestamp)), nil
	default: // get_image
		return info.Object(), nil
	}
}

// DecodeImages returns the records held in an encoded image store.
func DecodeImages(data []byte) ([]ImageInfo, error) {
	store, err := bounded.DecodeKeyed(imageSchema, data)
	if err != nil {
		return nil, err
	}
	return store.Records(), nil
}
