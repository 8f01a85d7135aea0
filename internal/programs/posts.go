package programs

import (
	"context"
	"math"

	"github.com/roach88/ledgerbox/internal/bounded"
	"github.com/roach88/ledgerbox/internal/ir"
	"github.com/roach88/ledgerbox/internal/layout"
)

// PostCapacity is the maximum number of posts a post store holds.
const PostCapacity = 100

// Post is one entry of the post ledger.
type Post struct {
	PostID      uint64
	UserAddress string
	IPFSHash    string
	ImageHash   string
	Content     string
	Timestamp   uint64
	WorldID     string
}

var (
	postIDField      = layout.U64("post_id")
	userAddressField = layout.String("user_address", 68)
	ipfsHashField    = layout.String("ipfs_hash", 64)
	postImageField   = layout.String("image_hash", 68)
	contentField     = layout.String("content", 284)
	postTimeField    = layout.U64("timestamp")
	worldIDField     = layout.String("world_id", 36)
)

var postSchema = &bounded.LedgerSchema[Post]{
	Layout: bounded.LedgerLayout("PostStore", "next_post_id", PostCapacity, layout.NewRecord(
		postIDField,
		userAddressField,
		ipfsHashField,
		postImageField,
		contentField,
		postTimeField,
		worldIDField,
	)),
	Codec:  postCodec{},
	ID:     func(p Post) uint64 { return p.PostID },
	WithID: func(p Post, id uint64) Post { p.PostID = id; return p },
}

type postCodec struct{}

func (postCodec) Encode(w *layout.Writer, p Post) error {
	if err := w.U64(p.PostID); err != nil {
		return err
	}
	if err := w.String(userAddressField, p.UserAddress); err != nil {
		return err
	}
	if err := w.String(ipfsHashField, p.IPFSHash); err != nil {
		return err
	}
	if err := w.String(postImageField, p.ImageHash); err != nil {
		return err
	}
	if err := w.String(contentField, p.Content); err != nil {
		return err
	}
	if err := w.U64(p.Timestamp); err != nil {
		return err
	}
	return w.String(worldIDField, p.WorldID)
}

func (postCodec) Decode(rd *layout.Reader) (Post, error) {
	var p Post
	var err error
	if p.PostID, err = rd.U64(); err != nil {
		return p, err
	}
	if p.UserAddress, err = rd.String(userAddressField); err != nil {
		return p, err
	}
	if p.IPFSHash, err = rd.String(ipfsHashField); err != nil {
		return p, err
	}
	if p.ImageHash, err = rd.String(postImageField); err != nil {
		return p, err
	}
	if p.Content, err = rd.String(contentField); err != nil {
		return p, err
	}
	if p.Timestamp, err = rd.U64(); err != nil {
		return p, err
	}
	p.WorldID, err = rd.String(worldIDField)
	return p, err
}

// Object renders a post as a value; it doubles as the PostCreated payload.
func (p Post) Object() ir.Object {
	return ir.Object{
		"post_id":      ir.Int(int64(p.PostID)),
		"user_address": ir.String(p.UserAddress),
		"ipfs_hash":    ir.String(p.IPFSHash),
		"image_hash":   ir.String(p.ImageHash),
		"content":      ir.String(p.Content),
		"timestamp":    ir.Int(int64(p.Timestamp)),
		"world_id":     ir.String(p.WorldID),
	}
}

// Posts is the post ledger program.
type Posts struct{}

func (Posts) Name() string { return "posts" }

func (Posts) Layout() layout.Store { return postSchema.Layout }

func (Posts) Actions() []ir.ActionSig {
	return []ir.ActionSig{
		{
			Name: "create_post",
			Kind: ir.KindAction,
			Args: []ir.NamedArg{
				{Name: "ipfs_hash", Type: "string"},
				{Name: "image_hash", Type: "string"},
				{Name: "content", Type: "string"},
				{Name: "world_id", Type: "string"},
			},
			Emits: "PostCreated",
		},
		{Name: "get_post", Kind: ir.KindQuery, Args: []ir.NamedArg{{Name: "post_id", Type: "int"}}},
		{Name: "get_posts_descending", Kind: ir.KindQuery, Args: []ir.NamedArg{{Name: "limit", Type: "int"}}},
		{Name: "stats", Kind: ir.KindQuery},
	}
}

// Init returns an empty post store whose first post id is 1.
func (Posts) Init() ([]byte, error) {
	return bounded.NewLedger(postSchema).Encode()
}

func (p Posts) Execute(ctx context.Context, data []byte, call Call) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	sig, err := lookupSig(p, call.Action, ir.KindAction, call.Args)
	if err != nil {
		return Outcome{}, err
	}

	ledger, err := bounded.DecodeLedger(postSchema, data)
	if err != nil {
		return Outcome{}, err
	}

	// create_post is the only action.
	post := Post{UserAddress: call.Signer, Timestamp: uint64(call.Timestamp)}
	if post.IPFSHash, err = argString(call.Args, "ipfs_hash"); err != nil {
		return Outcome{}, err
	}
	if post.ImageHash, err = argString(call.Args, "image_hash"); err != nil {
		return Outcome{}, err
	}
	if post.Content, err = argString(call.Args, "content"); err != nil {
		return Outcome{}, err
	}
	if post.WorldID, err = argString(call.Args, "world_id"); err != nil {
		return Outcome{}, err
	}

	stored, err := ledger.Append(post)
	if err != nil {
		return Outcome{}, err
	}
	buf, err := encodeNew(postSchema.Layout.Size(), ledger.EncodeTo)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Data: buf, Event: sig.Emits, Payload: stored.Object()}, nil
}

func (p Posts) View(data []byte, query string, args ir.Object) (ir.Value, error) {
	if _, err := lookupSig(p, query, ir.KindQuery, args); err != nil {
		return nil, err
	}
	ledger, err := bounded.DecodeLedger(postSchema, data)
	if err != nil {
		return nil, err
	}

	switch query {
	case "get_post":
		id, err := argInt(args, "post_id", 0, math.MaxInt64)
		if err != nil {
			return nil, err
		}
		post, err := ledger.Get(uint64(id))
		if err != nil {
			return nil, err
		}
		return post.Object(), nil

	case "get_posts_descending":
		limit, err := argInt(args, "limit", 0, math.MaxUint8)
		if err != nil {
			return nil, err
		}
		posts := ledger.Recent(int(limit))
		out := make(ir.Array, len(posts))
		for i, post := range posts {
			out[i] = post.Object()
		}
		return out, nil

	default: // stats
		return statsValue(postSchema.Layout, ledger.Len(), ir.Object{
			"next_post_id": ir.Int(int64(ledger.NextID())),
		}), nil
	}
}

// DecodePosts returns the posts held in an encoded post store, oldest first.
func DecodePosts(data []byte) ([]Post, error) {
	ledger, err := bounded.DecodeLedger(postSchema, data)
	if err != nil {
		return nil, err
	}
	return ledger.Records(), nil
}
