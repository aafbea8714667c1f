// Copyright 2024 Matt Schultz <schultz@sent.com>. All rights reserved.
// Use of this source code is governed by an ISC license that can be found in the LICENSE file.

/*
Package rcon is a client for the Source RCON protocol as described by Valve Software at
https://developer.valvesoftware.com/wiki/Source_RCON_Protocol, as spoken by game servers such as
Minecraft.

A [Session] authenticates once with [Session.Login] and then runs text commands with
[Session.Execute]. [Dial] does both the TCP connect and the login. Responses longer than a single
read are reassembled by a [Reassembler] using fixed 4096-byte reads: a read whose payload fills
the buffer means another fragment follows.

Request IDs start at 1 and increase by one per packet, the login packet included. A response
carrying any other ID than the request just sent fails with a [CorrelationMismatchError].
*/
package rcon
