// Package onnx wraps the parts of ONNX Runtime the detector needs: locating
// and loading the shared library, building session options, and laying out
// image data as NCHW float tensors.
package onnx
