// Package netcdf adapts NetCDF classic variables to source.ArraySource and
// writes packed integer variables following the CF packing convention.
//
// Files are read and written through github.com/ctessum/cdf; any
// cdf.ReaderWriterAt (an *os.File, a mapped blob, testutil.MemFile) works.
//
// A variable carrying scale_factor and add_offset attributes is unpacked on
// read, so a file produced by WritePacked reads back as physical values.
// Elements equal to _FillValue read as NaN.
package netcdf
