// Package serializer turns CommandRequest and CommandResponse values into frame
// bodies and back.
//
// Two implementations exist:
//
//   - proto (default): the protobuf wire format written with protowire. No
//     generated code is involved; the schema is documented on NewProtoSerializer.
//   - json: encoding/json with a oneof style object per command. Useful for
//     debugging with packet captures.
//
// Both append into a caller supplied buffer so the frame layer can reuse memory.
package serializer
