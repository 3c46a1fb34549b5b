// Package fs abstracts the file system operations of the local blob store
// so that tests can inject I/O faults.
//
// Production code uses fs.Default ([LocalFS]). Tests wrap it in a
// [FaultyFS]:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".tree", fs.Fault{FailOnSync: true})
//	bs := blobstore.NewLocalStoreFS(dir, ffs)
package fs
