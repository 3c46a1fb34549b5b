// Package signature defines the contract every signature scheme implements.
//
// A signature is a fixed-size, approximate representation of a set of
// normalized tokens. Schemes provide four capabilities:
//
//   - Signature: the signature of a single token
//   - Combine: an associative, commutative union with Identity as neutral element
//   - MayHaveMatch: a predicate that never rejects a signature whose token
//     set contains the query (false positives are allowed)
//   - AppendSignature / DecodeSignature / MarshalBinary: the byte streams
//     persisted next to the tree
//
// Schemes that need to see the token vocabulary before producing signatures
// additionally implement Trainer.
//
// Implementations live in the sub-packages stringset, qgram and minwise.
package signature
