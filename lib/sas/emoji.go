// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package sas

// Emoji is one symbol of the emoji rendering together with the English
// name users read aloud.
type Emoji struct {
	Symbol      string
	Description string
}

// emojiTable is the fixed 64-entry table every Matrix client shares.
var emojiTable = [64]Emoji{
	{Symbol: "🐶", Description: "Dog"},
	{Symbol: "🐱", Description: "Cat"},
	{Symbol: "🦁", Description: "Lion"},
	{Symbol: "🐎", Description: "Horse"},
	{Symbol: "🦄", Description: "Unicorn"},
	{Symbol: "🐷", Description: "Pig"},
	{Symbol: "🐘", Description: "Elephant"},
	{Symbol: "🐰", Description: "Rabbit"},
	{Symbol: "🐼", Description: "Panda"},
	{Symbol: "🐓", Description: "Rooster"},
	{Symbol: "🐧", Description: "Penguin"},
	{Symbol: "🐢", Description: "Turtle"},
	{Symbol: "🐟", Description: "Fish"},
	{Symbol: "🐙", Description: "Octopus"},
	{Symbol: "🦋", Description: "Butterfly"},
	{Symbol: "🌷", Description: "Flower"},
	{Symbol: "🌳", Description: "Tree"},
	{Symbol: "🌵", Description: "Cactus"},
	{Symbol: "🍄", Description: "Mushroom"},
	{Symbol: "🌏", Description: "Globe"},
	{Symbol: "🌙", Description: "Moon"},
	{Symbol: "☁️", Description: "Cloud"},
	{Symbol: "🔥", Description: "Fire"},
	{Symbol: "🍌", Description: "Banana"},
	{Symbol: "🍎", Description: "Apple"},
	{Symbol: "🍓", Description: "Strawberry"},
	{Symbol: "🌽", Description: "Corn"},
	{Symbol: "🍕", Description: "Pizza"},
	{Symbol: "🎂", Description: "Cake"},
	{Symbol: "❤️", Description: "Heart"},
	{Symbol: "😀", Description: "Smiley"},
	{Symbol: "🤖", Description: "Robot"},
	{Symbol: "🎩", Description: "Hat"},
	{Symbol: "👓", Description: "Glasses"},
	{Symbol: "🔧", Description: "Spanner"},
	{Symbol: "🎅", Description: "Santa"},
	{Symbol: "👍", Description: "Thumbs Up"},
	{Symbol: "☂️", Description: "Umbrella"},
	{Symbol: "⌛", Description: "Hourglass"},
	{Symbol: "⏰", Description: "Clock"},
	{Symbol: "🎁", Description: "Gift"},
	{Symbol: "💡", Description: "Light Bulb"},
	{Symbol: "📕", Description: "Book"},
	{Symbol: "✏️", Description: "Pencil"},
	{Symbol: "📎", Description: "Paperclip"},
	{Symbol: "✂️", Description: "Scissors"},
	{Symbol: "🔒", Description: "Lock"},
	{Symbol: "🔑", Description: "Key"},
	{Symbol: "🔨", Description: "Hammer"},
	{Symbol: "☎️", Description: "Telephone"},
	{Symbol: "🏁", Description: "Flag"},
	{Symbol: "🚂", Description: "Train"},
	{Symbol: "🚲", Description: "Bicycle"},
	{Symbol: "✈️", Description: "Aeroplane"},
	{Symbol: "🚀", Description: "Rocket"},
	{Symbol: "🏆", Description: "Trophy"},
	{Symbol: "⚽", Description: "Ball"},
	{Symbol: "🎸", Description: "Guitar"},
	{Symbol: "🎺", Description: "Trumpet"},
	{Symbol: "🔔", Description: "Bell"},
	{Symbol: "⚓", Description: "Anchor"},
	{Symbol: "🎧", Description: "Headphones"},
	{Symbol: "📁", Description: "Folder"},
	{Symbol: "📌", Description: "Pin"},
}
