package main

// General API documentation for swaggo. Build with -tags=swagger to serve it.
//
// @title           inferd API
// @version         1.0
// @description     Hybrid local/cloud inference: classification, completion and idea rewriting.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
