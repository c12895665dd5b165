/*
Package deploy manages runtime process lifecycles.

Three managers share one interface: Local runs the HTTP app inside the
current process, Detached re-executes the binary as a daemonized child
supervised through a pidfile and the admin endpoints, and Kubernetes
renders manifests and hands them to kubectl. All of them probe TCP
readiness before reporting a deployment as up.
*/
package deploy
