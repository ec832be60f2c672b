// Package watch turns fsnotify notifications into the two subscriptions the
// development loop consumes: the component source tree, which triggers
// rebuilds, and the project config files, whose change ends the loop.
package watch
