package sigtree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/sigtree/blobstore"
	"github.com/hupe1980/sigtree/geo"
	"github.com/hupe1980/sigtree/internal/compress"
	"github.com/hupe1980/sigtree/rtree"
	"github.com/hupe1980/sigtree/signature"
	"github.com/hupe1980/sigtree/store"
)

// Index is a populated signature tree over a store.
//
// An Index is immutable and safe for concurrent queries.
type Index[S any] struct {
	id        string
	scheme    signature.Scheme[S]
	store     store.Store
	tree      *rtree.Tree[S]
	itemNodes []rtree.NodeRef
	opts      options
	logger    *Logger
}

// BuildID returns the id of the build that produced the index.
func (x *Index[S]) BuildID() string { return x.id }

// Scheme returns the signature scheme.
func (x *Index[S]) Scheme() signature.Scheme[S] { return x.scheme }

// Store returns the indexed store.
func (x *Index[S]) Store() store.Store { return x.store }

// Tree returns the spatial tree.
func (x *Index[S]) Tree() *rtree.Tree[S] { return x.tree }

// Len returns the number of inserted items.
func (x *Index[S]) Len() int { return x.tree.Len() }

// NodeRef returns the tree handle of item id, rtree.NoNode if the item was
// never inserted.
func (x *Index[S]) NodeRef(id uint32) rtree.NodeRef {
	if int(id) >= len(x.itemNodes) {
		return rtree.NoNode
	}
	return x.itemNodes[id]
}

// ItemNode returns the boundary, signature and id stored for item id.
func (x *Index[S]) ItemNode(id uint32) (rtree.ItemNode[S], error) {
	n, ok := x.tree.Item(x.NodeRef(id))
	if !ok {
		return rtree.ItemNode[S]{}, fmt.Errorf("%w: item %d", ErrNotInserted, id)
	}
	return n, nil
}

// Find returns the items accepted by both predicates using the tree's
// traversal. A nil predicate accepts everything.
func (x *Index[S]) Find(gp geo.Predicate, sp signature.Predicate[S]) *roaring.Bitmap {
	out := roaring.New()
	x.tree.Find(gp, sp, out.Add)
	return out
}

// Query returns the items whose boundary intersects area and whose
// signature may contain the normalized token query.
func (x *Index[S]) Query(area geo.Rect, query string, mo signature.MatchOptions) *roaring.Bitmap {
	return x.Find(geo.MayHaveMatch(area), x.scheme.MayHaveMatch(query, mo))
}

// MatchingItems evaluates both predicates on every inserted item node
// directly, bypassing the tree's pruning.
func (x *Index[S]) MatchingItems(gp geo.Predicate, sp signature.Predicate[S]) *roaring.Bitmap {
	out := roaring.New()
	for _, ref := range x.itemNodes {
		n, ok := x.tree.Item(ref)
		if !ok {
			continue
		}
		if (gp == nil || gp(n.Boundary)) && (sp == nil || sp(n.Signature)) {
			out.Add(n.Item)
		}
	}
	return out
}

// Serialize writes the tree to treeW and the scheme's traits metadata to
// traitsW. Both streams are framed with the configured compression.
func (x *Index[S]) Serialize(treeW, traitsW io.Writer) error {
	return Serialize(x.tree, x.scheme, treeW, traitsW, x.opts.compression)
}

// EqualSerialized reports whether the streams written by Serialize describe
// exactly this index.
func (x *Index[S]) EqualSerialized(treeR, traitsR io.Reader) (bool, error) {
	traits, err := ReadTraits(traitsR)
	if err != nil {
		return false, err
	}
	want, err := x.scheme.MarshalBinary()
	if err != nil {
		return false, err
	}
	if !bytes.Equal(traits, want) {
		return false, nil
	}

	tree, err := ReadTree(treeR, x.scheme)
	if err != nil {
		return false, err
	}
	return rtree.Equal(x.tree, tree), nil
}

// Serialize writes tree and the traits of scheme as two compressed streams.
func Serialize[S any](tree *rtree.Tree[S], scheme signature.Scheme[S], treeW, traitsW io.Writer, c Compression) error {
	if err := writeTree(treeW, tree, c); err != nil {
		return err
	}
	return writeTraits(traitsW, scheme, c)
}

func writeTree[S any](w io.Writer, tree *rtree.Tree[S], c Compression) error {
	cw := compress.NewWriter(w, c)
	if err := tree.Serialize(cw); err != nil {
		return fmt.Errorf("serialize tree: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("serialize tree: %w", err)
	}
	return nil
}

func writeTraits[S any](w io.Writer, scheme signature.Scheme[S], c Compression) error {
	traits, err := scheme.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize traits: %w", err)
	}
	cw := compress.NewWriter(w, c)
	if _, err := cw.Write(traits); err != nil {
		return fmt.Errorf("serialize traits: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("serialize traits: %w", err)
	}
	return nil
}

// TreeBlob and TraitsBlob name the blobs of an index saved as name.
// CurrentBlob names the pointer to the latest published version.
func TreeBlob(name string) string    { return name + ".tree" }
func TraitsBlob(name string) string  { return name + ".traits" }
func CurrentBlob(name string) string { return name + blobstore.PointerSuffix }

// Save writes the tree and traits streams to bs.
func (x *Index[S]) Save(ctx context.Context, bs blobstore.BlobStore, name string) error {
	err := blobstore.Write(ctx, bs, TreeBlob(name), func(w io.Writer) error {
		return writeTree(w, x.tree, x.opts.compression)
	})
	if err != nil {
		return err
	}
	err = blobstore.Write(ctx, bs, TraitsBlob(name), func(w io.Writer) error {
		return writeTraits(w, x.scheme, x.opts.compression)
	})
	if err != nil {
		return err
	}
	x.logger.InfoContext(ctx, "index saved", "name", name, "items", x.Len())
	return nil
}

// Publish saves the index under a name carrying its build id and then
// points CurrentBlob(name) at it. It returns the versioned name.
//
// Stores with atomic pointer commits fail with
// blobstore.ErrConcurrentModification when another build published the
// same name concurrently; the versioned blobs are kept.
func (x *Index[S]) Publish(ctx context.Context, bs blobstore.BlobStore, name string) (string, error) {
	version := name + "-" + x.id
	if err := x.Save(ctx, bs, version); err != nil {
		return "", err
	}
	if err := bs.Put(ctx, CurrentBlob(name), []byte(version)); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	x.logger.InfoContext(ctx, "index published", "name", name, "version", version)
	return version, nil
}

// ReadCurrent returns the versioned name published last under name.
func ReadCurrent(ctx context.Context, bs blobstore.BlobStore, name string) (string, error) {
	data, err := blobstore.ReadAll(ctx, bs, CurrentBlob(name))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// EqualStored is EqualSerialized for an index saved with Save.
func (x *Index[S]) EqualStored(ctx context.Context, bs blobstore.BlobStore, name string) (bool, error) {
	tree, err := blobstore.ReadAll(ctx, bs, TreeBlob(name))
	if err != nil {
		return false, err
	}
	traits, err := blobstore.ReadAll(ctx, bs, TraitsBlob(name))
	if err != nil {
		return false, err
	}
	return x.EqualSerialized(bytes.NewReader(tree), bytes.NewReader(traits))
}

// ReadTree decodes a tree stream written by Serialize. scheme must be the
// scheme restored from the matching traits stream.
func ReadTree[S any](r io.Reader, scheme signature.Scheme[S]) (*rtree.Tree[S], error) {
	data, err := compress.ReadAll(r)
	if err != nil {
		if errors.Is(err, compress.ErrCorrupt) {
			return nil, fmt.Errorf("%w: tree: %w", ErrCorrupt, err)
		}
		return nil, err
	}
	tree, err := rtree.Read[S](bytes.NewReader(data), scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: tree: %w", ErrCorrupt, err)
	}
	return tree, nil
}

// ReadTraits returns the raw traits metadata from a stream written by
// Serialize.
func ReadTraits(r io.Reader) ([]byte, error) {
	data, err := compress.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: traits: %w", ErrCorrupt, err)
	}
	return data, nil
}
