// Package artifact stores pipeline outputs under per-task namespaces.
//
// Keys take the form {tenant}/{project}/{task_id}/{path}. Artifacts written
// before namespacing live at tasks/{task_id}/{file}; Resolve and Exists fall
// back to that layout when the primary key is absent. The local backend
// commits writes by rename after fsync; the S3 backend hands out presigned
// or public URLs.
package artifact
