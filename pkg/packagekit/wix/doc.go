/*
Package wix is a lightweight wrapper around the wix tooolset.

Background and Theory Of Operations

wix's toolchain is based around compiling xml files into
installers. This package stamps an installer template, and drives the
compiler and linker over the result.

The basic steps of making a package:
  1. Start with a xml template holding @@TOKEN@@ placeholders
  2. Use Render to replace each placeholder, once, in a fixed order
  3. Use `candle` to compile the rendered xml into a wixobj
  4. Use `light` to link the wixobj into an msi

The template carries two guid slots. Both are filled with fresh guids
on every render.

While this is a somewhat agnostic wrapper, it does make several
assumptions about the underlying process. It is not meant as a
complete wix wrapper.

References

  1. http://wixtoolset.org/
  2. https://github.com/golang/build/blob/790500f5933191797a6638a27127be424f6ae2c2/cmd/release/releaselet.go#L224

*/
package wix
